package models

import (
	"strings"
	"time"
)

// Role is the authorization role of a user
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	return r == RoleEmployee || r == RoleManager
}

// User is a member of the directory
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	Role               Role      `json:"role"`
	ManagerID          string    `json:"manager_id,omitempty"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
}

// FullName joins the first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsManager reports whether the user holds the manager role
func (u *User) IsManager() bool {
	return u.Role == RoleManager
}

// NormalizeEmail trims and lower-cases an email address for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmployeeSummary is the presentation shape of a direct report
type EmployeeSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
}

// Summarize maps a user onto the employee presentation shape
func (u *User) Summarize() EmployeeSummary {
	return EmployeeSummary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
	}
}
