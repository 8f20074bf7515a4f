package postgres

import "time"

type callTemplateTableModel struct {
	ID          int64      `db:"id"`
	PublicID    string     `db:"public_id"`
	Name        string     `db:"name"`
	Description string     `db:"description"`
	Body        string     `db:"body"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
}

type callTemplateInsertModel struct {
	PublicID    string `db:"public_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Body        string `db:"body"`
}
