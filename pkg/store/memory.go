package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/psantana5/smartworking/pkg/models"
)

// MemoryStore is an in-memory implementation of the data store
type MemoryStore struct {
	users      map[string]*models.User
	userOrder  []string
	requests   map[string]*models.Request
	byToken    map[string]string // token hash -> request id
	seq        int64
	usersMu    sync.RWMutex
	requestsMu sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*models.User),
		requests: make(map[string]*models.Request),
		byToken:  make(map[string]string),
	}
}

// User operations

// CreateUser adds a user, rejecting duplicate emails
func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	email := models.NormalizeEmail(user.Email)
	for _, u := range s.users {
		if u.Email == email {
			return ErrEmailTaken
		}
	}

	cp := *user
	cp.Email = email
	s.users[cp.ID] = &cp
	s.userOrder = append(s.userOrder, cp.ID)
	user.Email = email
	return nil
}

// GetUser retrieves a user by ID
func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail retrieves a user by email, ignoring case
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	email = models.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// GetFirstManager returns the earliest registered manager
func (s *MemoryStore) GetFirstManager(_ context.Context) (*models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	for _, id := range s.userOrder {
		if u := s.users[id]; u.IsManager() {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// ListEmployeesByManager returns the direct reports of a manager in registration order
func (s *MemoryStore) ListEmployeesByManager(_ context.Context, managerID string) ([]*models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	out := make([]*models.User, 0)
	for _, id := range s.userOrder {
		if u := s.users[id]; u.ManagerID == managerID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// UpdateUser replaces the stored profile of an existing user
func (s *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	cp := *user
	cp.Email = models.NormalizeEmail(cp.Email)
	s.users[user.ID] = &cp
	return nil
}

// Request operations

// CreateRequest checks the date is free for the owner and inserts the request
// under one lock.
func (s *MemoryStore) CreateRequest(_ context.Context, req *models.Request) error {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()

	for _, r := range s.requests {
		if r.UserID == req.UserID && r.Date.Equal(req.Date) && models.BlocksDate(r.Status) {
			return ErrDuplicateDate
		}
	}

	s.seq++
	req.Seq = s.seq
	cp := *req
	cp.Owner = nil
	s.requests[cp.ID] = &cp
	if cp.ActionTokenHash != "" {
		s.byToken[cp.ActionTokenHash] = cp.ID
	}
	return nil
}

// GetRequest retrieves a request by ID
func (s *MemoryStore) GetRequest(_ context.Context, id string) (*models.Request, error) {
	s.requestsMu.RLock()
	r, ok := s.requests[id]
	var cp models.Request
	if ok {
		cp = *r
	}
	s.requestsMu.RUnlock()

	if !ok {
		return nil, ErrRequestNotFound
	}
	s.attachOwner(&cp)
	return &cp, nil
}

// GetRequestByTokenHash retrieves the pending request holding the given token hash
func (s *MemoryStore) GetRequestByTokenHash(ctx context.Context, tokenHash string) (*models.Request, error) {
	if tokenHash == "" {
		return nil, ErrRequestNotFound
	}
	s.requestsMu.RLock()
	id, ok := s.byToken[tokenHash]
	s.requestsMu.RUnlock()
	if !ok {
		return nil, ErrRequestNotFound
	}
	return s.GetRequest(ctx, id)
}

// ListRequestsByUser returns the requests owned by a user
func (s *MemoryStore) ListRequestsByUser(_ context.Context, userID string) ([]*models.Request, error) {
	return s.listRequests(func(r *models.Request) bool { return r.UserID == userID }), nil
}

// ListRequestsByManager returns the requests of a manager's direct reports
func (s *MemoryStore) ListRequestsByManager(_ context.Context, managerID string) ([]*models.Request, error) {
	s.usersMu.RLock()
	reports := make(map[string]bool)
	for _, u := range s.users {
		if u.ManagerID == managerID {
			reports[u.ID] = true
		}
	}
	s.usersMu.RUnlock()

	return s.listRequests(func(r *models.Request) bool { return reports[r.UserID] }), nil
}

// ListAllRequests returns every request
func (s *MemoryStore) ListAllRequests(_ context.Context) ([]*models.Request, error) {
	return s.listRequests(func(*models.Request) bool { return true }), nil
}

// TransitionRequest atomically decides a pending request
func (s *MemoryStore) TransitionRequest(_ context.Context, id string, to models.RequestStatus, at time.Time) (*models.Request, error) {
	s.requestsMu.Lock()
	r, ok := s.requests[id]
	if !ok {
		s.requestsMu.Unlock()
		return nil, ErrRequestNotFound
	}
	if r.Status != models.RequestStatusPending {
		s.requestsMu.Unlock()
		return nil, ErrNotPending
	}
	if err := models.ValidateTransition(r.Status, to); err != nil {
		s.requestsMu.Unlock()
		return nil, err
	}

	delete(s.byToken, r.ActionTokenHash)
	r.Status = to
	r.ActionTokenHash = ""
	r.UpdatedAt = at
	cp := *r
	s.requestsMu.Unlock()

	s.attachOwner(&cp)
	return &cp, nil
}

// DeleteRequest removes a decided request
func (s *MemoryStore) DeleteRequest(_ context.Context, id string) error {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if r.Status == models.RequestStatusPending {
		return ErrStillPending
	}
	delete(s.requests, id)
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

// HealthCheck always succeeds for the memory store
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

func (s *MemoryStore) listRequests(match func(*models.Request) bool) []*models.Request {
	s.requestsMu.RLock()
	out := make([]*models.Request, 0)
	for _, r := range s.requests {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	s.requestsMu.RUnlock()

	sortRequests(out)
	for _, r := range out {
		s.attachOwner(r)
	}
	return out
}

func (s *MemoryStore) attachOwner(r *models.Request) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	if u, ok := s.users[r.UserID]; ok {
		cp := *u
		r.Owner = &cp
	}
}

// sortRequests orders by date descending, then by insertion order
func sortRequests(requests []*models.Request) {
	sort.SliceStable(requests, func(i, j int) bool {
		a, b := requests[i], requests[j]
		if !a.Date.Equal(b.Date) {
			return b.Date.Before(a.Date)
		}
		return a.Seq < b.Seq
	})
}
