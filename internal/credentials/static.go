package credentials

import (
	"context"
	"os"

	"github.com/smazurov/kvsnode/internal/config"
)

// StaticSource returns a fixed access key pair. Empty fields fall back to
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY at resolve time.
type StaticSource struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Resolve returns the configured keys or a FetchError when either is missing.
func (s StaticSource) Resolve(_ context.Context) (Credentials, error) {
	akid := s.AccessKeyID
	if akid == "" {
		akid = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	secret := s.SecretAccessKey
	if secret == "" {
		secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	switch {
	case akid == "":
		return nil, fetchErrorf(0, nil, "no credential endpoint configured and AWS_ACCESS_KEY_ID is not set")
	case secret == "":
		return nil, fetchErrorf(0, nil, "AWS_SECRET_ACCESS_KEY is not set")
	}
	return StaticKeys{AccessKeyID: akid, SecretAccessKey: secret}, nil
}

// FromEnvironment picks the credential endpoint when one is configured and
// falls back to static keys otherwise.
func FromEnvironment(env *config.RuntimeEnv) Source {
	if env.HasCredentialEndpoint() {
		return NewHTTPSource(env.CredentialsURI, env.CredentialsAuthToken)
	}
	return StaticSource{AccessKeyID: env.AccessKeyID, SecretAccessKey: env.SecretAccessKey}
}
