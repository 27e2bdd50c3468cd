package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sovereign/internal/config"
	"sovereign/internal/repo"
)

// ResolveConfig picks the active council config and ensures one exists in the
// DB, seeding it if missing. Precedence: DB copy, then sovereign.yml in the
// workspace, then the built-in default council.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetCouncilConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.UpsertCouncilConfig(ctx, cfg, now); err != nil {
		return nil, fmt.Errorf("seed council config: %w", err)
	}
	return cfg, nil
}
