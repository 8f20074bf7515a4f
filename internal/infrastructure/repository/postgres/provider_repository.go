package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/redial/internal/domain/provider"
	qb "github.com/riskibarqy/redial/internal/platform/querybuilder"
)

type ProviderRepository struct {
	db *sqlx.DB
}

func NewProviderRepository(db *sqlx.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

func (r *ProviderRepository) Create(ctx context.Context, item provider.Provider) error {
	settingsJSON, err := marshalStringMap(item.Settings)
	if err != nil {
		return fmt.Errorf("marshal provider settings: %w", err)
	}

	insertModel := providerInsertModel{
		PublicID:           item.ID,
		Name:               item.Name,
		Kind:               item.Kind,
		Active:             item.Active,
		Priority:           item.Priority,
		MaxConcurrentCalls: item.MaxConcurrentCalls,
		Settings:           settingsJSON,
	}
	query, args, err := qb.InsertModel("providers", insertModel, "")
	if err != nil {
		return fmt.Errorf("build create provider query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	return nil
}

func (r *ProviderRepository) Update(ctx context.Context, item provider.Provider) error {
	settingsJSON, err := marshalStringMap(item.Settings)
	if err != nil {
		return fmt.Errorf("marshal provider settings: %w", err)
	}

	query, args, err := qb.Update("providers").
		Set("name", item.Name).
		Set("kind", item.Kind).
		Set("active", item.Active).
		Set("priority", item.Priority).
		Set("max_concurrent_calls", item.MaxConcurrentCalls).
		Set("settings", settingsJSON).
		SetExpr("updated_at", "NOW()").
		Where(
			qb.Eq("public_id", item.ID),
			qb.IsNull("deleted_at"),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update provider query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected update provider: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update provider: not found")
	}

	return nil
}

func (r *ProviderRepository) GetByID(ctx context.Context, providerID string) (provider.Provider, bool, error) {
	query, args, err := qb.Select("*").From("providers").
		Where(
			qb.Eq("public_id", providerID),
			qb.IsNull("deleted_at"),
		).
		ToSQL()
	if err != nil {
		return provider.Provider{}, false, fmt.Errorf("build get provider by id query: %w", err)
	}

	var row providerTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return provider.Provider{}, false, nil
		}
		return provider.Provider{}, false, fmt.Errorf("get provider by id: %w", err)
	}

	item, err := providerFromRow(row)
	if err != nil {
		return provider.Provider{}, false, err
	}
	return item, true, nil
}

func (r *ProviderRepository) List(ctx context.Context, includeInactive bool) ([]provider.Provider, error) {
	conditions := []qb.Condition{qb.IsNull("deleted_at")}
	if !includeInactive {
		conditions = append(conditions, qb.Eq("active", true))
	}

	query, args, err := qb.Select("*").From("providers").
		Where(conditions...).
		OrderBy("priority ASC", "name ASC").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list providers query: %w", err)
	}

	var rows []providerTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	out := make([]provider.Provider, 0, len(rows))
	for _, row := range rows {
		item, err := providerFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *ProviderRepository) SoftDelete(ctx context.Context, providerID string) error {
	query, args, err := qb.Update("providers").
		SetExpr("deleted_at", "NOW()").
		Where(
			qb.Eq("public_id", providerID),
			qb.IsNull("deleted_at"),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build soft delete provider query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("soft delete provider: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected soft delete provider: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("soft delete provider: not found")
	}

	return nil
}

func providerFromRow(row providerTableModel) (provider.Provider, error) {
	settings, err := unmarshalStringMap(row.Settings)
	if err != nil {
		return provider.Provider{}, fmt.Errorf("unmarshal provider %s settings: %w", row.PublicID, err)
	}

	return provider.Provider{
		ID:                 row.PublicID,
		Name:               row.Name,
		Kind:               row.Kind,
		Active:             row.Active,
		Priority:           row.Priority,
		MaxConcurrentCalls: row.MaxConcurrentCalls,
		Settings:           settings,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}, nil
}
