package scripttemplate

import "time"

// Template is a reusable call-script body rendered with per-job variables.
type Template struct {
	ID          string
	Name        string
	Description string
	Body        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
