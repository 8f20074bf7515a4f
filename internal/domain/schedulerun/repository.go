package schedulerun

import "context"

// Repository records background run outcomes.
type Repository interface {
	UpsertRun(ctx context.Context, record RunRecord) error
	ListRecent(ctx context.Context, limit int) ([]RunRecord, error)
}
