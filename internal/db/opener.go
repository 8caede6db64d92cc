package db

import (
	"context"

	"go.uber.org/zap"

	"workshop-functions/internal/config"
	"workshop-functions/internal/secrets"
)

// Opener yields a fresh pool per invocation. The caller closes it.
type Opener func(ctx context.Context) (*Pool, error)

// PostgresOpener resolves ref's credential and opens a pgx pool for it.
func PostgresOpener(r *secrets.Reader, ref config.DBRef, logger *zap.Logger) Opener {
	return func(ctx context.Context) (*Pool, error) {
		cred, err := r.Credential(ctx, ref)
		if err != nil {
			return nil, err
		}
		return OpenPostgres(cred, logger)
	}
}
