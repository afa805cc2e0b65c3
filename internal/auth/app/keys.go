package app

import (
	"fmt"
	"log/slog"

	"github.com/commacm/comma-auth/pkg/cryptox"
	"github.com/commacm/comma-auth/pkg/jwtx"
)

// InitSigningKey builds the HMAC key tokens are signed and verified with.
//
// Secret handling:
//   - dev: an empty or placeholder secret is replaced with a random one.
//     Tokens stop verifying when the process restarts.
//   - anything else: the secret must be set explicitly; Validate rejects
//     the placeholder before we get here.
func InitSigningKey(cfg Config, logger *slog.Logger) (*jwtx.HMACKey, error) {
	secret := cfg.JWTSecret

	if cfg.IsDev() && (secret == "" || secret == DefaultJWTSecret) {
		generated, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, fmt.Errorf("generate dev secret: %w", err)
		}
		secret = generated
		logger.Warn("AUTH_JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	key, err := jwtx.NewHMACKey(cfg.JWTAlgorithm, []byte(secret))
	if err != nil {
		return nil, err
	}
	logger.Info("signing key ready", "alg", key.Alg())
	return key, nil
}
