package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretValueGetter is the slice of the Secrets Manager client the provider uses.
type secretValueGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerProvider implements Provider using AWS Secrets Manager.
type AWSSecretsManagerProvider struct {
	client secretValueGetter
}

// NewAWSProvider creates a new AWS Secrets Manager provider for the given region.
func NewAWSProvider(ctx context.Context, region string) (Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSSecretsManagerProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// GetSecret fetches and decodes a secret value from AWS Secrets Manager.
// Secrets are stored as JSON maps (e.g. {"api_key": "abc", "base_url": "https://..."}).
func (p *AWSSecretsManagerProvider) GetSecret(ctx context.Context, key string) (map[string]string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret [%s]: %w", key, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret [%s] has no string value", key)
	}

	var result map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &result); err != nil {
		return nil, fmt.Errorf("invalid secret format for [%s]: %w", key, err)
	}
	return result, nil
}
