package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/redial/internal/domain/scripttemplate"
	qb "github.com/riskibarqy/redial/internal/platform/querybuilder"
)

type TemplateRepository struct {
	db *sqlx.DB
}

func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, item scripttemplate.Template) error {
	insertModel := callTemplateInsertModel{
		PublicID:    item.ID,
		Name:        item.Name,
		Description: item.Description,
		Body:        item.Body,
	}
	query, args, err := qb.InsertModel("call_templates", insertModel, "")
	if err != nil {
		return fmt.Errorf("build create call template query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create call template: %w", err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, templateID string) (scripttemplate.Template, bool, error) {
	query, args, err := qb.Select("*").From("call_templates").
		Where(
			qb.Eq("public_id", templateID),
			qb.IsNull("deleted_at"),
		).
		ToSQL()
	if err != nil {
		return scripttemplate.Template{}, false, fmt.Errorf("build get call template by id query: %w", err)
	}

	var row callTemplateTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return scripttemplate.Template{}, false, nil
		}
		return scripttemplate.Template{}, false, fmt.Errorf("get call template by id: %w", err)
	}

	return callTemplateFromRow(row), true, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]scripttemplate.Template, error) {
	query, args, err := qb.Select("*").From("call_templates").
		Where(qb.IsNull("deleted_at")).
		OrderBy("name ASC").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list call templates query: %w", err)
	}

	var rows []callTemplateTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list call templates: %w", err)
	}

	out := make([]scripttemplate.Template, 0, len(rows))
	for _, row := range rows {
		out = append(out, callTemplateFromRow(row))
	}
	return out, nil
}

func callTemplateFromRow(row callTemplateTableModel) scripttemplate.Template {
	return scripttemplate.Template{
		ID:          row.PublicID,
		Name:        row.Name,
		Description: row.Description,
		Body:        row.Body,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
