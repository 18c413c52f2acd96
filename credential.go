package realtime

import (
	"context"
	"fmt"
	"os"
)

// CredentialProvider hands out the bearer token used to authenticate a
// connection attempt. The token is fetched per attempt and never retained
// beyond connection setup; reconnects fetch a fresh one, so short-lived
// ephemeral credentials work without client involvement.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// CredentialFunc adapts a plain function to a CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticCredential is a fixed API key.
type StaticCredential string

func (s StaticCredential) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("realtime: empty credential")
	}
	return string(s), nil
}

// EnvCredential reads the key from the first non-empty environment
// variable, at connection time.
func EnvCredential(vars ...string) CredentialProvider {
	return CredentialFunc(func(ctx context.Context) (string, error) {
		for _, name := range vars {
			if k := os.Getenv(name); k != "" {
				return k, nil
			}
		}
		return "", fmt.Errorf("realtime: no credential in env (%v)", vars)
	})
}
