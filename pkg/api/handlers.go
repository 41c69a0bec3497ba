package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/psantana5/smartworking/pkg/auth"
	"github.com/psantana5/smartworking/pkg/lifecycle"
	"github.com/psantana5/smartworking/pkg/logging"
	"github.com/psantana5/smartworking/pkg/models"
	"github.com/psantana5/smartworking/pkg/rbac"
)

// LoginInput represents a login request
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordInput represents a password reset request
type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ChangePasswordInput represents a password change by the signed-in user
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// Handler serves the smart working HTTP API
type Handler struct {
	engine   *lifecycle.Engine
	accounts *auth.Service
	validate *validator.Validate
	logger   *logging.Logger
}

// NewHandler creates the API handler
func NewHandler(engine *lifecycle.Engine, accounts *auth.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		engine:   engine,
		accounts: accounts,
		validate: newValidator(),
		logger:   logger.WithComponent("api"),
	}
}

// RegisterRoutes registers the API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	// Anonymous
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
	api.HandleFunc("/requests/action", h.HandleEmailAction).Methods(http.MethodGet)

	authn := rbac.Authenticate(h.accounts)
	api.Handle("/auth/change-password", authn(http.HandlerFunc(h.ChangePassword))).Methods(http.MethodPost)

	api.Handle("/requests", authn(http.HandlerFunc(h.ListRequests))).Methods(http.MethodGet)
	api.Handle("/requests", authn(rbac.EmployeeOnly(http.HandlerFunc(h.CreateRequest)))).Methods(http.MethodPost)
	api.Handle("/requests/all", authn(rbac.ManagerOnly(http.HandlerFunc(h.ListAllRequests)))).Methods(http.MethodGet)
	api.Handle("/requests/{id}/status", authn(rbac.ManagerOnly(http.HandlerFunc(h.UpdateStatus)))).Methods(http.MethodPut)
	api.Handle("/requests/{id}", authn(rbac.ManagerOnly(http.HandlerFunc(h.DeleteRequest)))).Methods(http.MethodDelete)

	api.Handle("/users/employees", authn(rbac.ManagerOnly(http.HandlerFunc(h.ListEmployees)))).Methods(http.MethodGet)
}

// Login exchanges credentials for a bearer token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if !h.decode(w, r, &in) {
		return
	}
	resp, err := h.accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Register signs up an employee and logs them in
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !h.decode(w, r, &in) {
		return
	}
	resp, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ForgotPassword always answers the same way, known email or not
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in ForgotPasswordInput
	if !h.decode(w, r, &in) {
		return
	}
	h.accounts.ForgotPassword(r.Context(), in.Email)
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "If the address is registered you will receive an email with a temporary password.",
	})
}

// ChangePassword replaces the caller's password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := rbac.GetUserID(r.Context())
	var in ChangePasswordInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), userID, in.CurrentPassword, in.NewPassword); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated."})
}

// ListRequests returns the caller's requests, or their team's for managers
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID, _ := rbac.GetUserID(r.Context())

	var (
		requests []models.RequestSummary
		err      error
	)
	if rbac.GetUserRole(r.Context()) == models.RoleManager {
		requests, err = h.engine.ListByManager(r.Context(), userID)
	} else {
		requests, err = h.engine.ListMine(r.Context(), userID)
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// ListAllRequests returns every request in the system
func (h *Handler) ListAllRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.engine.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// CreateRequest files a smart working day for the caller
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := rbac.GetUserID(r.Context())
	var in models.CreateRequestInput
	if !h.decode(w, r, &in) {
		return
	}
	date, err := models.ParseDate(in.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	summary, err := h.engine.CreateRequest(r.Context(), userID, date, in.Description)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/requests/"+summary.ID)
	writeJSON(w, http.StatusCreated, summary)
}

// UpdateStatus approves or rejects a request
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := rbac.GetUserID(r.Context())
	id := mux.Vars(r)["id"]

	var in models.UpdateStatusInput
	if !h.decode(w, r, &in) {
		return
	}
	status, err := models.ParseStatus(in.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "status must be approved or rejected")
		return
	}

	summary, err := h.engine.UpdateStatus(r.Context(), id, status, userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// DeleteRequest removes a decided request
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := rbac.GetUserID(r.Context())
	if err := h.engine.DeleteRequest(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEmailAction applies the decision carried by an emailed link. Every
// failure gets the same reply.
func (h *Handler) HandleEmailAction(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	action := q.Get("action")

	if !h.engine.HandleTokenAction(r.Context(), q.Get("token"), action) {
		writeError(w, http.StatusBadRequest, "invalid_action", tokenActionFailed)
		return
	}

	status, _ := models.ParseAction(action)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Request " + string(status) + "."})
}

// ListEmployees returns the caller's direct reports
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	userID, _ := rbac.GetUserID(r.Context())
	employees, err := h.engine.ListEmployees(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, employees)
}
