package secrets

import (
	"context"
	"fmt"
)

// Provider defines a generic secrets manager interface.
// Concrete implementations (AWS, static) can satisfy this.
type Provider interface {
	// GetSecret retrieves a secret by key/path and returns a key-value map.
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}

// StaticProvider serves secrets from memory; used in dev and tests where no
// secrets manager is reachable.
type StaticProvider map[string]map[string]string

func (p StaticProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	s, ok := p[key]
	if !ok {
		return nil, fmt.Errorf("secret [%s] not found", key)
	}
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}
