package crypto

import (
	"context"
	"os"

	"github.com/nrms/data-bridge/pkg/apperr"
)

// CredentialsProvider resolves the (password, salt) pair used to
// decrypt a given source key, generalized from the teacher's
// pkg/secrets SecretManager.GetSecret(ctx, key) lookup interface — here
// narrowed to the one secret shape this engine actually needs.
type CredentialsProvider interface {
	GetCredentials(ctx context.Context, sourceKey string) (password, salt string, err error)
}

// EnvCredentialsProvider reads one password from the PasswordEnvVar
// environment variable and pairs it with a single shared salt. The same
// password is returned for every source key; it is not derived per key.
type EnvCredentialsProvider struct {
	Salt           string
	PasswordEnvVar string
}

// NewEnvCredentialsProvider builds a provider reading the password from
// passwordEnvVar and using salt for every source key.
func NewEnvCredentialsProvider(salt, passwordEnvVar string) *EnvCredentialsProvider {
	return &EnvCredentialsProvider{Salt: salt, PasswordEnvVar: passwordEnvVar}
}

func (p *EnvCredentialsProvider) GetCredentials(_ context.Context, sourceKey string) (string, string, error) {
	password := os.Getenv(p.PasswordEnvVar)
	if password == "" {
		return "", "", apperr.New(apperr.KindConfig, "crypto", "GetCredentials",
			"missing password environment variable "+p.PasswordEnvVar+" for key "+sourceKey)
	}

	if p.Salt == "" {
		return "", "", apperr.New(apperr.KindConfig, "crypto", "GetCredentials", "missing salt")
	}

	return password, p.Salt, nil
}
