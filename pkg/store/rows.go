package store

import (
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/psantana5/smartworking/pkg/models"
)

// userRow mirrors the users table for scany
type userRow struct {
	ID                 string    `db:"id"`
	Email              string    `db:"email"`
	PasswordHash       string    `db:"password_hash"`
	FirstName          string    `db:"first_name"`
	LastName           string    `db:"last_name"`
	Role               string    `db:"role"`
	ManagerID          string    `db:"manager_id"`
	MustChangePassword bool      `db:"must_change_password"`
	CreatedAt          time.Time `db:"created_at"`
}

var userColumns = []string{
	"id",
	"email",
	"password_hash",
	"first_name",
	"last_name",
	"role",
	"COALESCE(manager_id, '') AS manager_id",
	"must_change_password",
	"created_at",
}

func (r *userRow) toModel() *models.User {
	return &models.User{
		ID:                 r.ID,
		Email:              r.Email,
		PasswordHash:       r.PasswordHash,
		FirstName:          r.FirstName,
		LastName:           r.LastName,
		Role:               models.Role(r.Role),
		ManagerID:          r.ManagerID,
		MustChangePassword: r.MustChangePassword,
		CreatedAt:          r.CreatedAt,
	}
}

// requestRow is a request joined with the public fields of its owner
type requestRow struct {
	Seq             int64     `db:"seq"`
	ID              string    `db:"id"`
	UserID          string    `db:"user_id"`
	Date            string    `db:"date"`
	Description     string    `db:"description"`
	Status          string    `db:"status"`
	ActionTokenHash string    `db:"action_token_hash"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`

	OwnerEmail     string    `db:"owner_email"`
	OwnerFirstName string    `db:"owner_first_name"`
	OwnerLastName  string    `db:"owner_last_name"`
	OwnerRole      string    `db:"owner_role"`
	OwnerManagerID string    `db:"owner_manager_id"`
	OwnerCreatedAt time.Time `db:"owner_created_at"`
}

// requestColumns builds the joined projection; dateExpr differs per dialect
func requestColumns(dateExpr string) []string {
	return []string{
		"r.seq",
		"r.id",
		"r.user_id",
		dateExpr + " AS date",
		"r.description",
		"r.status",
		"COALESCE(r.action_token_hash, '') AS action_token_hash",
		"r.created_at",
		"r.updated_at",
		"u.email AS owner_email",
		"u.first_name AS owner_first_name",
		"u.last_name AS owner_last_name",
		"u.role AS owner_role",
		"COALESCE(u.manager_id, '') AS owner_manager_id",
		"u.created_at AS owner_created_at",
	}
}

// selectRequests is the base query shared by every request read
func selectRequests(dateExpr string) squirrel.SelectBuilder {
	return squirrel.Select(requestColumns(dateExpr)...).
		From("requests r").
		Join("users u ON u.id = r.user_id")
}

// requestOrder is date descending with insertion order breaking ties
var requestOrder = []string{"r.date DESC", "r.seq ASC"}

func (r *requestRow) toModel() (*models.Request, error) {
	date, err := models.ParseDate(r.Date)
	if err != nil {
		return nil, err
	}
	return &models.Request{
		ID:              r.ID,
		Seq:             r.Seq,
		UserID:          r.UserID,
		Date:            date,
		Description:     r.Description,
		Status:          models.RequestStatus(r.Status),
		ActionTokenHash: r.ActionTokenHash,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		Owner: &models.User{
			ID:        r.UserID,
			Email:     r.OwnerEmail,
			FirstName: r.OwnerFirstName,
			LastName:  r.OwnerLastName,
			Role:      models.Role(r.OwnerRole),
			ManagerID: r.OwnerManagerID,
			CreatedAt: r.OwnerCreatedAt,
		},
	}, nil
}

func requestsFromRows(rows []requestRow) ([]*models.Request, error) {
	out := make([]*models.Request, 0, len(rows))
	for i := range rows {
		req, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

func usersFromRows(rows []userRow) []*models.User {
	out := make([]*models.User, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}

// nullable maps the empty string to SQL NULL
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
