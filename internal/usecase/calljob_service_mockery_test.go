package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/riskibarqy/redial/internal/domain/calljob"
	"github.com/riskibarqy/redial/internal/domain/provider"
	calljobmock "github.com/riskibarqy/redial/internal/mocks/domain/calljob"
	providermock "github.com/riskibarqy/redial/internal/mocks/domain/provider"
	"github.com/stretchr/testify/mock"
)

type staticIDGenerator struct {
	id string
}

func (g staticIDGenerator) NewID() (string, error) {
	return g.id, nil
}

type staticRenderer struct {
	script string
	err    error
}

func (r staticRenderer) RenderScript(context.Context, string, map[string]string) (string, error) {
	return r.script, r.err
}

type staticQuota struct {
	err error
}

func (q staticQuota) CheckCallAllowance(context.Context, string) error {
	return q.err
}

func newCallJobServiceForTest(t *testing.T, renderer ScriptRenderer, quota QuotaChecker) (*CallJobService, *calljobmock.Repository, *providermock.Repository) {
	t.Helper()

	jobRepo := calljobmock.NewRepository(t)
	providerRepo := providermock.NewRepository(t)
	service := NewCallJobService(jobRepo, providerRepo, renderer, quota, staticIDGenerator{id: "job-001"}, CallJobServiceConfig{})
	service.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return service, jobRepo, providerRepo
}

func TestCallJobService_Enqueue_CreatesPendingJob(t *testing.T) {
	t.Parallel()

	service, jobRepo, _ := newCallJobServiceForTest(t, staticRenderer{script: "Hello Dina, your appointment is at 3 PM."}, nil)

	jobRepo.
		On("Create", mock.Anything, mock.MatchedBy(func(job calljob.Job) bool {
			return job.ID == "job-001" &&
				job.Status == calljob.StatusPending &&
				job.PhoneNumber == "+628111234567" &&
				job.Script == "Hello Dina, your appointment is at 3 PM." &&
				job.MaxRetries == 3 &&
				job.AttemptCount == 0
		})).
		Return(nil).
		Once()

	job, err := service.Enqueue(context.Background(), EnqueueCallInput{
		AccountID:   "acc-1",
		PhoneNumber: "+62 811-123-4567",
		TemplateID:  "tpl-appointment-reminder",
		Variables:   map[string]string{"customer_name": "Dina"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != calljob.StatusPending {
		t.Fatalf("unexpected status: %s", job.Status)
	}
	if !job.CreatedAt.Equal(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created at: %s", job.CreatedAt)
	}
}

func TestCallJobService_Enqueue_QuotaExhausted(t *testing.T) {
	t.Parallel()

	quotaErr := fmt.Errorf("%w: call quota used up for this billing period", ErrQuotaExceeded)
	service, _, _ := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, staticQuota{err: quotaErr})

	_, err := service.Enqueue(context.Background(), EnqueueCallInput{
		AccountID:   "acc-1",
		PhoneNumber: "+628111234567",
		TemplateID:  "tpl-1",
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestCallJobService_Enqueue_PinnedProviderMustExistAndBeActive(t *testing.T) {
	t.Parallel()

	service, _, providerRepo := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, nil)

	providerRepo.
		On("GetByID", mock.Anything, "prov-gone").
		Return(provider.Provider{}, false, nil).
		Once()
	providerRepo.
		On("GetByID", mock.Anything, "prov-paused").
		Return(provider.Provider{ID: "prov-paused", Active: false}, true, nil).
		Once()

	for _, pinned := range []string{"prov-gone", "prov-paused"} {
		_, err := service.Enqueue(context.Background(), EnqueueCallInput{
			AccountID:        "acc-1",
			PhoneNumber:      "+628111234567",
			TemplateID:       "tpl-1",
			PinnedProviderID: pinned,
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("pinned=%s: expected ErrInvalidInput, got %v", pinned, err)
		}
	}
}

func TestCallJobService_Enqueue_RejectsMalformedPhoneNumbers(t *testing.T) {
	t.Parallel()

	service, _, _ := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, nil)

	for _, phone := range []string{"", "12345", "+62x8111234567", "+1234567890123456"} {
		_, err := service.Enqueue(context.Background(), EnqueueCallInput{
			AccountID:   "acc-1",
			PhoneNumber: phone,
			TemplateID:  "tpl-1",
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("phone=%q: expected ErrInvalidInput, got %v", phone, err)
		}
	}
}

func TestCallJobService_Get_ForeignAccountSeesNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, jobRepo, _ := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, nil)

	jobRepo.
		On("GetByID", mock.MatchedBy(func(v context.Context) bool { return v == ctx }), "job-1").
		Return(calljob.Job{ID: "job-1", AccountID: "acc-owner", Status: calljob.StatusPending}, true, nil).
		Once()

	_, err := service.Get(ctx, "acc-intruder", "job-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a foreign account, got %v", err)
	}
}

func TestCallJobService_List_ClampsLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, jobRepo, _ := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, nil)

	jobRepo.
		On("ListByAccount", mock.MatchedBy(func(v context.Context) bool { return v == ctx }), "acc-1", calljob.ListFilter{Limit: 200}).
		Return([]calljob.Job{}, nil).
		Once()

	if _, err := service.List(ctx, ListCallsInput{AccountID: "acc-1", Limit: 10_000}); err != nil {
		t.Fatalf("list: %v", err)
	}

	_, err := service.List(ctx, ListCallsInput{AccountID: "acc-1", Status: "exploded"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for an unknown status filter, got %v", err)
	}
}

func TestCallJobService_Cancel_PendingJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, jobRepo, _ := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, nil)
	pending := calljob.Job{ID: "job-1", AccountID: "acc-1", Status: calljob.StatusPending}

	jobRepo.
		On("GetByID", mock.MatchedBy(func(v context.Context) bool { return v == ctx }), "job-1").
		Return(pending, true, nil).
		Once()
	jobRepo.
		On("Transition", mock.MatchedBy(func(v context.Context) bool { return v == ctx }), "job-1",
			[]string{calljob.StatusPending}, calljob.StatusCanceled, calljob.TransitionFields{ClearNextAttempt: true}).
		Return(true, nil).
		Once()

	job, err := service.Cancel(ctx, "acc-1", "job-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if job.Status != calljob.StatusCanceled {
		t.Fatalf("unexpected status: %s", job.Status)
	}
}

func TestCallJobService_Cancel_CanceledJobIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, jobRepo, _ := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, nil)

	jobRepo.
		On("GetByID", mock.MatchedBy(func(v context.Context) bool { return v == ctx }), "job-1").
		Return(calljob.Job{ID: "job-1", AccountID: "acc-1", Status: calljob.StatusCanceled}, true, nil).
		Once()

	job, err := service.Cancel(ctx, "acc-1", "job-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if job.Status != calljob.StatusCanceled {
		t.Fatalf("unexpected status: %s", job.Status)
	}
}

func TestCallJobService_Cancel_InFlightJobIsRefused(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, jobRepo, _ := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, nil)

	jobRepo.
		On("GetByID", mock.MatchedBy(func(v context.Context) bool { return v == ctx }), "job-1").
		Return(calljob.Job{ID: "job-1", AccountID: "acc-1", Status: calljob.StatusInFlight}, true, nil).
		Once()

	_, err := service.Cancel(ctx, "acc-1", "job-1")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for an in-flight cancel, got %v", err)
	}
}

func TestCallJobService_Cancel_LostRaceAgainstConcurrentCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, jobRepo, _ := newCallJobServiceForTest(t, staticRenderer{script: "hello"}, nil)
	pending := calljob.Job{ID: "job-1", AccountID: "acc-1", Status: calljob.StatusPending}

	jobRepo.
		On("GetByID", mock.MatchedBy(func(v context.Context) bool { return v == ctx }), "job-1").
		Return(pending, true, nil).
		Once()
	jobRepo.
		On("Transition", mock.Anything, "job-1", []string{calljob.StatusPending}, calljob.StatusCanceled, mock.Anything).
		Return(false, nil).
		Once()
	jobRepo.
		On("GetByID", mock.MatchedBy(func(v context.Context) bool { return v == ctx }), "job-1").
		Return(calljob.Job{ID: "job-1", AccountID: "acc-1", Status: calljob.StatusCanceled}, true, nil).
		Once()

	job, err := service.Cancel(ctx, "acc-1", "job-1")
	if err != nil {
		t.Fatalf("cancel after lost race: %v", err)
	}
	if job.Status != calljob.StatusCanceled {
		t.Fatalf("unexpected status: %s", job.Status)
	}
}
