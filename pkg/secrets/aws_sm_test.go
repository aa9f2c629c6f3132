package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsClient struct {
	value *string
	err   error
	asked string
}

func (f *fakeSecretsClient) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestAWSProvider_GetSecret(t *testing.T) {
	client := &fakeSecretsClient{value: aws.String(`{"api_key":"k-123","base_url":"https://payouts.example"}`)}
	p := &AWSSecretsManagerProvider{client: client}

	got, err := p.GetSecret(context.Background(), "marketplace-ledger/payout")
	require.NoError(t, err)
	assert.Equal(t, "marketplace-ledger/payout", client.asked)
	assert.Equal(t, "k-123", got["api_key"])
	assert.Equal(t, "https://payouts.example", got["base_url"])
}

func TestAWSProvider_Errors(t *testing.T) {
	ctx := context.Background()

	p := &AWSSecretsManagerProvider{client: &fakeSecretsClient{err: errors.New("access denied")}}
	_, err := p.GetSecret(ctx, "s")
	assert.ErrorContains(t, err, "failed to fetch secret [s]")

	p = &AWSSecretsManagerProvider{client: &fakeSecretsClient{}}
	_, err = p.GetSecret(ctx, "s")
	assert.ErrorContains(t, err, "no string value")

	p = &AWSSecretsManagerProvider{client: &fakeSecretsClient{value: aws.String("not-json")}}
	_, err = p.GetSecret(ctx, "s")
	assert.ErrorContains(t, err, "invalid secret format")
}
