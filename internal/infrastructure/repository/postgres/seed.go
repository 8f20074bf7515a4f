package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/redial/internal/infrastructure/repository/memory"
)

// BootstrapSeed installs the default providers and call templates into an
// empty database. A database that already has providers is left alone.
func BootstrapSeed(ctx context.Context, db *sqlx.DB) error {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(1) FROM providers WHERE deleted_at IS NULL`); err != nil {
		return fmt.Errorf("count providers for bootstrap seed: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, p := range memory.SeedProviders() {
		settingsJSON, err := marshalStringMap(p.Settings)
		if err != nil {
			return fmt.Errorf("marshal seed provider %s settings: %w", p.ID, err)
		}
		sqlQuery, args, err := sqlx.Named(`
INSERT INTO providers (public_id, name, kind, active, priority, max_concurrent_calls, settings)
VALUES (:public_id, :name, :kind, :active, :priority, :max_concurrent_calls, :settings)
ON CONFLICT (public_id) DO NOTHING`, map[string]any{
			"public_id":            p.ID,
			"name":                 p.Name,
			"kind":                 p.Kind,
			"active":               p.Active,
			"priority":             p.Priority,
			"max_concurrent_calls": p.MaxConcurrentCalls,
			"settings":             settingsJSON,
		})
		if err != nil {
			return fmt.Errorf("bind seed provider %s query: %w", p.ID, err)
		}
		sqlQuery = tx.Rebind(sqlQuery)
		if _, err := tx.ExecContext(ctx, sqlQuery, args...); err != nil {
			return fmt.Errorf("seed provider %s: %w", p.ID, err)
		}
	}

	for _, t := range memory.SeedTemplates() {
		sqlQuery, args, err := sqlx.Named(`
INSERT INTO call_templates (public_id, name, description, body)
VALUES (:public_id, :name, :description, :body)
ON CONFLICT (public_id) DO NOTHING`, map[string]any{
			"public_id":   t.ID,
			"name":        t.Name,
			"description": t.Description,
			"body":        t.Body,
		})
		if err != nil {
			return fmt.Errorf("bind seed call template %s query: %w", t.ID, err)
		}
		sqlQuery = tx.Rebind(sqlQuery)
		if _, err := tx.ExecContext(ctx, sqlQuery, args...); err != nil {
			return fmt.Errorf("seed call template %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}

	return nil
}
