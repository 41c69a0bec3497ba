package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/smartworking/pkg/models"
)

type fixture struct {
	manager  *models.User
	manager2 *models.User
	alice    *models.User
	bob      *models.User
	carol    *models.User // reports to manager2
}

func newUser(email string, role models.Role, managerID string) *models.User {
	return &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "First",
		LastName:     email,
		Role:         role,
		ManagerID:    managerID,
		CreatedAt:    time.Now().UTC(),
	}
}

func newRequest(userID string, date models.Date) *models.Request {
	now := time.Now().UTC()
	return &models.Request{
		ID:              uuid.NewString(),
		UserID:          userID,
		Date:            date,
		Description:     "from home",
		Status:          models.RequestStatusPending,
		ActionTokenHash: uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func seedUsers(t *testing.T, s Store) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{}
	f.manager = newUser("boss@example.com", models.RoleManager, "")
	require.NoError(t, s.CreateUser(ctx, f.manager))
	f.manager2 = newUser("other-boss@example.com", models.RoleManager, "")
	require.NoError(t, s.CreateUser(ctx, f.manager2))
	f.alice = newUser("Alice@Example.com", models.RoleEmployee, f.manager.ID)
	require.NoError(t, s.CreateUser(ctx, f.alice))
	f.bob = newUser("bob@example.com", models.RoleEmployee, f.manager.ID)
	require.NoError(t, s.CreateUser(ctx, f.bob))
	f.carol = newUser("carol@example.com", models.RoleEmployee, f.manager2.ID)
	require.NoError(t, s.CreateUser(ctx, f.carol))
	return f
}

// runStoreSuite exercises the behavior every Store implementation must share
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	day1 := models.NewDate(2024, time.March, 14)
	day2 := models.NewDate(2024, time.March, 15)

	t.Run("ManageUsers", func(t *testing.T) {
		s := newStore(t)
		f := seedUsers(t, s)

		got, err := s.GetUserByEmail(ctx, "ALICE@example.COM ")
		require.NoError(t, err)
		assert.Equal(t, f.alice.ID, got.ID)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.Equal(t, f.manager.ID, got.ManagerID)

		err = s.CreateUser(ctx, newUser("alice@example.com", models.RoleEmployee, f.manager.ID))
		assert.ErrorIs(t, err, ErrEmailTaken)

		first, err := s.GetFirstManager(ctx)
		require.NoError(t, err)
		assert.Equal(t, f.manager.ID, first.ID)

		reports, err := s.ListEmployeesByManager(ctx, f.manager.ID)
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Equal(t, f.alice.ID, reports[0].ID)
		assert.Equal(t, f.bob.ID, reports[1].ID)

		got.PasswordHash = "new-hash"
		got.MustChangePassword = true
		require.NoError(t, s.UpdateUser(ctx, got))
		reloaded, err := s.GetUser(ctx, got.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", reloaded.PasswordHash)
		assert.True(t, reloaded.MustChangePassword)

		_, err = s.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, s.UpdateUser(ctx, newUser("ghost@example.com", models.RoleEmployee, "")), ErrUserNotFound)
	})

	t.Run("ReportNoManagerOnEmptyDirectory", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetFirstManager(ctx)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("EnforceOneActiveRequestPerDate", func(t *testing.T) {
		s := newStore(t)
		f := seedUsers(t, s)

		first := newRequest(f.alice.ID, day1)
		require.NoError(t, s.CreateRequest(ctx, first))
		assert.NotZero(t, first.Seq)

		assert.ErrorIs(t, s.CreateRequest(ctx, newRequest(f.alice.ID, day1)), ErrDuplicateDate)
		// Another employee may take the same day
		require.NoError(t, s.CreateRequest(ctx, newRequest(f.bob.ID, day1)))

		_, err := s.TransitionRequest(ctx, first.ID, models.RequestStatusRejected, time.Now().UTC())
		require.NoError(t, err)
		// A rejection frees the date
		require.NoError(t, s.CreateRequest(ctx, newRequest(f.alice.ID, day1)))
	})

	t.Run("LoadRequestsWithOwnerAndToken", func(t *testing.T) {
		s := newStore(t)
		f := seedUsers(t, s)

		req := newRequest(f.alice.ID, day1)
		require.NoError(t, s.CreateRequest(ctx, req))

		got, err := s.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.True(t, got.Date.Equal(day1))
		assert.Equal(t, models.RequestStatusPending, got.Status)
		assert.Equal(t, req.ActionTokenHash, got.ActionTokenHash)
		require.NotNil(t, got.Owner)
		assert.Equal(t, "alice@example.com", got.Owner.Email)
		assert.Equal(t, f.manager.ID, got.Owner.ManagerID)

		byToken, err := s.GetRequestByTokenHash(ctx, req.ActionTokenHash)
		require.NoError(t, err)
		assert.Equal(t, req.ID, byToken.ID)

		_, err = s.GetRequestByTokenHash(ctx, "nope")
		assert.ErrorIs(t, err, ErrRequestNotFound)
		_, err = s.GetRequestByTokenHash(ctx, "")
		assert.ErrorIs(t, err, ErrRequestNotFound)
		_, err = s.GetRequest(ctx, "missing")
		assert.ErrorIs(t, err, ErrRequestNotFound)
	})

	t.Run("ListByDateDescendingThenInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		f := seedUsers(t, s)

		a1 := newRequest(f.alice.ID, day1)
		b2 := newRequest(f.bob.ID, day2)
		a2 := newRequest(f.alice.ID, day2)
		c1 := newRequest(f.carol.ID, day1)
		for _, r := range []*models.Request{a1, b2, a2, c1} {
			require.NoError(t, s.CreateRequest(ctx, r))
		}

		all, err := s.ListAllRequests(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{b2.ID, a2.ID, a1.ID, c1.ID}, ids(all))

		mine, err := s.ListRequestsByUser(ctx, f.alice.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{a2.ID, a1.ID}, ids(mine))

		team, err := s.ListRequestsByManager(ctx, f.manager.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{b2.ID, a2.ID, a1.ID}, ids(team))

		other, err := s.ListRequestsByManager(ctx, f.manager2.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{c1.ID}, ids(other))

		none, err := s.ListRequestsByUser(ctx, f.manager.ID)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("TransitionOnlyPendingRequests", func(t *testing.T) {
		s := newStore(t)
		f := seedUsers(t, s)

		req := newRequest(f.alice.ID, day1)
		require.NoError(t, s.CreateRequest(ctx, req))

		at := time.Now().UTC().Add(time.Minute)
		decided, err := s.TransitionRequest(ctx, req.ID, models.RequestStatusApproved, at)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusApproved, decided.Status)
		assert.Empty(t, decided.ActionTokenHash)
		require.NotNil(t, decided.Owner)

		_, err = s.GetRequestByTokenHash(ctx, req.ActionTokenHash)
		assert.ErrorIs(t, err, ErrRequestNotFound)

		_, err = s.TransitionRequest(ctx, req.ID, models.RequestStatusRejected, at)
		assert.ErrorIs(t, err, ErrNotPending)

		_, err = s.TransitionRequest(ctx, "missing", models.RequestStatusApproved, at)
		assert.ErrorIs(t, err, ErrRequestNotFound)

		_, err = s.TransitionRequest(ctx, req.ID, models.RequestStatusPending, at)
		assert.Error(t, err)
	})

	t.Run("DeleteOnlyDecidedRequests", func(t *testing.T) {
		s := newStore(t)
		f := seedUsers(t, s)

		req := newRequest(f.alice.ID, day1)
		require.NoError(t, s.CreateRequest(ctx, req))
		assert.ErrorIs(t, s.DeleteRequest(ctx, req.ID), ErrStillPending)

		_, err := s.TransitionRequest(ctx, req.ID, models.RequestStatusApproved, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, s.DeleteRequest(ctx, req.ID))

		_, err = s.GetRequest(ctx, req.ID)
		assert.ErrorIs(t, err, ErrRequestNotFound)
		assert.ErrorIs(t, s.DeleteRequest(ctx, req.ID), ErrRequestNotFound)
	})

	t.Run("LetExactlyOneConcurrentCreateWinDate", func(t *testing.T) {
		s := newStore(t)
		f := seedUsers(t, s)

		const attempts = 10
		var wg sync.WaitGroup
		errs := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.CreateRequest(ctx, newRequest(f.alice.ID, day2))
			}()
		}
		wg.Wait()
		close(errs)

		won := 0
		for err := range errs {
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrDuplicateDate):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, won, fmt.Sprintf("expected exactly one winner, got %d", won))
	})

	t.Run("LetExactlyOneConcurrentDecisionWin", func(t *testing.T) {
		s := newStore(t)
		f := seedUsers(t, s)
		req := newRequest(f.bob.ID, day1)
		require.NoError(t, s.CreateRequest(ctx, req))

		var wg sync.WaitGroup
		results := make(chan error, 2)
		for _, to := range []models.RequestStatus{models.RequestStatusApproved, models.RequestStatusRejected} {
			wg.Add(1)
			go func(to models.RequestStatus) {
				defer wg.Done()
				_, err := s.TransitionRequest(ctx, req.ID, to, time.Now().UTC())
				results <- err
			}(to)
		}
		wg.Wait()
		close(results)

		won := 0
		for err := range results {
			if err == nil {
				won++
			} else {
				assert.ErrorIs(t, err, ErrNotPending)
			}
		}
		assert.Equal(t, 1, won)
	})
}

func ids(requests []*models.Request) []string {
	out := make([]string, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.ID)
	}
	return out
}
