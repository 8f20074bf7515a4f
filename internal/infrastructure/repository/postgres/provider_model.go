package postgres

import "time"

type providerTableModel struct {
	ID                 int64      `db:"id"`
	PublicID           string     `db:"public_id"`
	Name               string     `db:"name"`
	Kind               string     `db:"kind"`
	Active             bool       `db:"active"`
	Priority           int        `db:"priority"`
	MaxConcurrentCalls int        `db:"max_concurrent_calls"`
	Settings           []byte     `db:"settings"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

type providerInsertModel struct {
	PublicID           string `db:"public_id"`
	Name               string `db:"name"`
	Kind               string `db:"kind"`
	Active             bool   `db:"active"`
	Priority           int    `db:"priority"`
	MaxConcurrentCalls int    `db:"max_concurrent_calls"`
	Settings           string `db:"settings"`
}
