package playstore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TokenSource yields the bearer credential for a request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed credential.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", fmt.Errorf("playstore: empty access token")
	}
	return string(t), nil
}

// EnvToken reads the credential from an environment variable on every call
// so an external refresher can rotate it.
type EnvToken string

// Token implements TokenSource.
func (name EnvToken) Token(context.Context) (string, error) {
	value := strings.TrimSpace(os.Getenv(string(name)))
	if value == "" {
		return "", fmt.Errorf("playstore: environment variable %s is not set", string(name))
	}
	return value, nil
}

// FileToken reads the credential from a file written by the identity
// collaborator.
type FileToken string

// Token implements TokenSource.
func (path FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return "", fmt.Errorf("playstore: read token file: %w", err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("playstore: token file %s is empty", string(path))
	}
	return value, nil
}
