package lifecycle

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/psantana5/smartworking/pkg/logging"
	"github.com/psantana5/smartworking/pkg/models"
	"github.com/psantana5/smartworking/pkg/notify"
	"github.com/psantana5/smartworking/pkg/store"
	"github.com/psantana5/smartworking/pkg/tracing"
)

type capturingNotifier struct {
	notify.Nop
	mu      sync.Mutex
	created []notify.RequestCreatedEvent
	changed []notify.StatusChangedEvent
}

func (n *capturingNotifier) RequestCreated(_ context.Context, ev notify.RequestCreatedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, ev)
}

func (n *capturingNotifier) StatusChanged(_ context.Context, ev notify.StatusChangedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, ev)
}

func (n *capturingNotifier) lastToken(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.created)
	return n.created[len(n.created)-1].Token
}

func (n *capturingNotifier) changedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.changed)
}

type countingRecorder struct {
	created     atomic.Int64
	transitions atomic.Int64
	failures    atomic.Int64
}

func (r *countingRecorder) RequestCreated()                                 { r.created.Add(1) }
func (r *countingRecorder) RequestTransitioned(models.RequestStatus, string) { r.transitions.Add(1) }
func (r *countingRecorder) TokenActionFailed()                               { r.failures.Add(1) }

type fixture struct {
	engine   *Engine
	store    *store.MemoryStore
	notifier *capturingNotifier
	recorder *countingRecorder
	manager  *models.User
	other    *models.User
	employee *models.User
	orphan   *models.User
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	users := []*models.User{
		{ID: "m1", Email: "boss@example.com", FirstName: "Anna", LastName: "Bianchi", Role: models.RoleManager},
		{ID: "m2", Email: "other@example.com", FirstName: "Luca", LastName: "Verdi", Role: models.RoleManager},
		{ID: "e1", Email: "mario@example.com", FirstName: "Mario", LastName: "Rossi", Role: models.RoleEmployee, ManagerID: "m1"},
		{ID: "e2", Email: "solo@example.com", FirstName: "Sara", LastName: "Neri", Role: models.RoleEmployee},
	}
	for _, u := range users {
		require.NoError(t, s.CreateUser(ctx, u))
	}

	n := &capturingNotifier{}
	rec := &countingRecorder{}
	return &fixture{
		engine:   NewEngine(s, n, cfg, logging.Nop(), rec),
		store:    s,
		notifier: n,
		recorder: rec,
		manager:  users[0],
		other:    users[1],
		employee: users[2],
		orphan:   users[3],
	}
}

func day(d int) models.Date {
	return models.NewDate(2026, time.March, d)
}

func TestCreateRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatePendingRequestAndNotifyManager", func(t *testing.T) {
		f := newFixture(t, Config{})

		summary, err := f.engine.CreateRequest(ctx, "e1", day(10), "dentist in the afternoon")
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusPending, summary.Status)
		assert.Equal(t, "Mario Rossi", summary.EmployeeName)
		assert.Equal(t, "mario@example.com", summary.EmployeeEmail)
		assert.True(t, summary.Date.Equal(day(10)))

		require.Len(t, f.notifier.created, 1)
		ev := f.notifier.created[0]
		assert.Equal(t, "boss@example.com", ev.ManagerEmail)
		assert.Equal(t, "Mario Rossi", ev.EmployeeName)
		assert.Equal(t, summary.ID, ev.RequestID)
		assert.NotEmpty(t, ev.Token)

		stored, err := f.store.GetRequest(ctx, summary.ID)
		require.NoError(t, err)
		assert.Equal(t, HashActionToken(ev.Token), stored.ActionTokenHash)
		assert.NotEqual(t, ev.Token, stored.ActionTokenHash)
		assert.EqualValues(t, 1, f.recorder.created.Load())
	})

	t.Run("IssueDistinctTokens", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		_, err = f.engine.CreateRequest(ctx, "e1", day(11), "")
		require.NoError(t, err)
		assert.NotEqual(t, f.notifier.created[0].Token, f.notifier.created[1].Token)
	})

	t.Run("RejectCallersWithoutManager", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.CreateRequest(ctx, "e2", day(10), "")
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, f.notifier.created)
	})

	t.Run("RejectUnknownCallers", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.CreateRequest(ctx, "ghost", day(10), "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("RejectManagerThatNoLongerExists", func(t *testing.T) {
		f := newFixture(t, Config{})
		require.NoError(t, f.store.CreateUser(ctx, &models.User{
			ID: "e3", Email: "lost@example.com", Role: models.RoleEmployee, ManagerID: "gone",
		}))
		_, err := f.engine.CreateRequest(ctx, "e3", day(10), "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("RejectMissingDate", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.CreateRequest(ctx, "e1", models.Date{}, "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("BoundDescriptionByCharacters", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.CreateRequest(ctx, "e1", day(10), strings.Repeat("è", models.MaxDescriptionLength))
		require.NoError(t, err)

		_, err = f.engine.CreateRequest(ctx, "e1", day(11), strings.Repeat("a", models.MaxDescriptionLength+1))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("RefuseSecondRequestForSameDay", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)

		_, err = f.engine.CreateRequest(ctx, "e1", day(10), "again")
		assert.ErrorIs(t, err, ErrValidation)
		assert.Len(t, f.notifier.created, 1)
	})

	t.Run("FreeDayOnceRejected", func(t *testing.T) {
		f := newFixture(t, Config{})
		first, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		_, err = f.engine.UpdateStatus(ctx, first.ID, models.RequestStatusRejected, "m1")
		require.NoError(t, err)

		_, err = f.engine.CreateRequest(ctx, "e1", day(10), "retry")
		assert.NoError(t, err)
	})

	t.Run("KeepDayBlockedOnceApproved", func(t *testing.T) {
		f := newFixture(t, Config{})
		first, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		_, err = f.engine.UpdateStatus(ctx, first.ID, models.RequestStatusApproved, "m1")
		require.NoError(t, err)

		_, err = f.engine.CreateRequest(ctx, "e1", day(10), "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("ApproveClearTokenAndNotifyEmployee", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		token := f.notifier.lastToken(t)

		decided, err := f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusApproved, "m1")
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusApproved, decided.Status)

		stored, err := f.store.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, stored.HasActionToken())

		require.Len(t, f.notifier.changed, 1)
		assert.Equal(t, "mario@example.com", f.notifier.changed[0].EmployeeEmail)
		assert.Equal(t, models.RequestStatusApproved, f.notifier.changed[0].Status)

		assert.False(t, f.engine.HandleTokenAction(ctx, token, "reject"))
		assert.EqualValues(t, 1, f.recorder.transitions.Load())
	})

	t.Run("ForbidManagersOfOtherEmployees", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)

		for _, status := range []models.RequestStatus{
			models.RequestStatusApproved, models.RequestStatusRejected, models.RequestStatusPending,
		} {
			_, err = f.engine.UpdateStatus(ctx, created.ID, status, "m2")
			assert.ErrorIs(t, err, ErrForbidden, "status %s", status)
		}
		_, err = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusApproved, "e1")
		assert.ErrorIs(t, err, ErrForbidden)

		stored, err := f.store.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusPending, stored.Status)
		assert.Zero(t, f.notifier.changedCount())
	})

	t.Run("RefuseNonTerminalTarget", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)

		_, err = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusPending, "m1")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("TreatDecidedRequestsAsImmutable", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		_, err = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusRejected, "m1")
		require.NoError(t, err)

		_, err = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusApproved, "m1")
		assert.ErrorIs(t, err, ErrValidation)

		stored, err := f.store.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusRejected, stored.Status)
		assert.Equal(t, 1, f.notifier.changedCount())
	})

	t.Run("ReportUnknownRequests", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.UpdateStatus(ctx, "missing", models.RequestStatusApproved, "m1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("RefuseToDeletePendingRequests", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)

		err = f.engine.DeleteRequest(ctx, created.ID, "m1")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("OnlyLetOwnersManagerDelete", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		_, err = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusApproved, "m1")
		require.NoError(t, err)

		assert.ErrorIs(t, f.engine.DeleteRequest(ctx, created.ID, "m2"), ErrForbidden)
		assert.ErrorIs(t, f.engine.DeleteRequest(ctx, created.ID, "e1"), ErrForbidden)
		require.NoError(t, f.engine.DeleteRequest(ctx, created.ID, "m1"))

		_, err = f.store.GetRequest(ctx, created.ID)
		assert.ErrorIs(t, err, store.ErrRequestNotFound)
		assert.ErrorIs(t, f.engine.DeleteRequest(ctx, created.ID, "m1"), ErrNotFound)
	})

	t.Run("FreeDayAfterDeletingApprovedRequest", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		_, err = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusApproved, "m1")
		require.NoError(t, err)
		require.NoError(t, f.engine.DeleteRequest(ctx, created.ID, "m1"))

		_, err = f.engine.CreateRequest(ctx, "e1", day(10), "")
		assert.NoError(t, err)
	})
}

func TestHandleTokenAction(t *testing.T) {
	ctx := context.Background()

	t.Run("DecideViaEmailedTokenExactlyOnce", func(t *testing.T) {
		f := newFixture(t, Config{ActionTokenTTL: DefaultActionTokenTTL})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		token := f.notifier.lastToken(t)

		assert.True(t, f.engine.HandleTokenAction(ctx, token, "approve"))
		assert.False(t, f.engine.HandleTokenAction(ctx, token, "approve"))
		assert.False(t, f.engine.HandleTokenAction(ctx, token, "reject"))

		stored, err := f.store.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusApproved, stored.Status)
		assert.Equal(t, 1, f.notifier.changedCount())
		assert.EqualValues(t, 2, f.recorder.failures.Load())
	})

	t.Run("AcceptActionsInAnyLetterCase", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)

		assert.True(t, f.engine.HandleTokenAction(ctx, f.notifier.lastToken(t), "Reject"))
		stored, err := f.store.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusRejected, stored.Status)
	})

	t.Run("FailWithoutSideEffectsOnBadInput", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		token := f.notifier.lastToken(t)

		assert.False(t, f.engine.HandleTokenAction(ctx, "", "approve"))
		assert.False(t, f.engine.HandleTokenAction(ctx, token, "maybe"))
		assert.False(t, f.engine.HandleTokenAction(ctx, token, ""))
		assert.False(t, f.engine.HandleTokenAction(ctx, "not-a-token", "approve"))
		assert.False(t, f.engine.HandleTokenAction(ctx, HashActionToken(token), "approve"))

		stored, err := f.store.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusPending, stored.Status)
		assert.True(t, stored.HasActionToken())
		assert.Zero(t, f.notifier.changedCount())

		assert.True(t, f.engine.HandleTokenAction(ctx, token, "approve"))
	})

	t.Run("RefuseExpiredTokens", func(t *testing.T) {
		f := newFixture(t, Config{ActionTokenTTL: time.Hour})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		token := f.notifier.lastToken(t)

		f.engine.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		assert.False(t, f.engine.HandleTokenAction(ctx, token, "approve"))

		stored, err := f.store.GetRequest(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusPending, stored.Status)

		_, err = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusApproved, "m1")
		assert.NoError(t, err)
	})

	t.Run("NeverExpireTokensWhenTTLIsZero", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)

		f.engine.now = func() time.Time { return time.Now().Add(365 * 24 * time.Hour) }
		assert.True(t, f.engine.HandleTokenAction(ctx, f.notifier.lastToken(t), "approve"))
	})

	t.Run("LetOnlyOneConcurrentActionWin", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		token := f.notifier.lastToken(t)

		var wins atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				action := "approve"
				if i%2 == 1 {
					action = "reject"
				}
				if f.engine.HandleTokenAction(ctx, token, action) {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.EqualValues(t, 1, wins.Load())
		assert.Equal(t, 1, f.notifier.changedCount())
	})

	t.Run("RaceCleanlyWithManagerDecision", func(t *testing.T) {
		f := newFixture(t, Config{})
		created, err := f.engine.CreateRequest(ctx, "e1", day(10), "")
		require.NoError(t, err)
		token := f.notifier.lastToken(t)

		var wg sync.WaitGroup
		var tokenWon bool
		var apiErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			tokenWon = f.engine.HandleTokenAction(ctx, token, "reject")
		}()
		go func() {
			defer wg.Done()
			_, apiErr = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusApproved, "m1")
		}()
		wg.Wait()

		if tokenWon {
			assert.ErrorIs(t, apiErr, ErrValidation)
		} else {
			assert.NoError(t, apiErr)
		}
		assert.Equal(t, 1, f.notifier.changedCount())
	})
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	_, err := f.engine.CreateRequest(ctx, "e1", day(5), "first")
	require.NoError(t, err)
	_, err = f.engine.CreateRequest(ctx, "e1", day(20), "second")
	require.NoError(t, err)
	_, err = f.engine.CreateRequest(ctx, "e1", day(12), "third")
	require.NoError(t, err)

	t.Run("ListOwnRequestsByDateDescending", func(t *testing.T) {
		mine, err := f.engine.ListMine(ctx, "e1")
		require.NoError(t, err)
		require.Len(t, mine, 3)
		assert.Equal(t, "second", mine[0].Description)
		assert.Equal(t, "third", mine[1].Description)
		assert.Equal(t, "first", mine[2].Description)
	})

	t.Run("ScopeManagerViewsToDirectReports", func(t *testing.T) {
		team, err := f.engine.ListByManager(ctx, "m1")
		require.NoError(t, err)
		assert.Len(t, team, 3)

		none, err := f.engine.ListByManager(ctx, "m2")
		require.NoError(t, err)
		assert.Empty(t, none)

		all, err := f.engine.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("ListDirectReports", func(t *testing.T) {
		employees, err := f.engine.ListEmployees(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, employees, 1)
		assert.Equal(t, "Mario Rossi", employees[0].FullName)

		mine, err := f.engine.ListMine(ctx, "e2")
		require.NoError(t, err)
		assert.Empty(t, mine)
	})
}

func TestEngineSpans(t *testing.T) {
	ctx := context.Background()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	f := newFixture(t, Config{Tracer: tracing.NewProvider(tp, "lifecycle-test")})

	created, err := f.engine.CreateRequest(ctx, f.employee.ID, models.NewDate(2025, time.March, 10), "doctor")
	require.NoError(t, err)
	token := f.notifier.lastToken(t)
	require.True(t, f.engine.HandleTokenAction(ctx, token, "approve"))
	_, err = f.engine.UpdateStatus(ctx, created.ID, models.RequestStatusRejected, f.other.ID)
	require.ErrorIs(t, err, ErrForbidden)

	ended := spans.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "lifecycle.CreateRequest", ended[0].Name())
	assert.Equal(t, "lifecycle.HandleTokenAction", ended[1].Name())
	assert.Equal(t, "lifecycle.UpdateStatus", ended[2].Name())

	assert.Empty(t, ended[0].Events())
	require.NotEmpty(t, ended[2].Events())
	assert.Equal(t, "exception", ended[2].Events()[0].Name)

	var sawRequestID, sawAccepted bool
	for _, span := range ended {
		for _, kv := range span.Attributes() {
			assert.NotContains(t, kv.Value.Emit(), token, "span %s attribute %s", span.Name(), kv.Key)
			if kv.Key == "request.id" && kv.Value.AsString() == created.ID {
				sawRequestID = true
			}
			if kv.Key == "action.accepted" && kv.Value.AsBool() {
				sawAccepted = true
			}
		}
	}
	assert.True(t, sawRequestID)
	assert.True(t, sawAccepted)
}
