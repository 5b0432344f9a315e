package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/armarios/internal/apperr"
	"github.com/erazemk/armarios/internal/db"
	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/store"
)

// UsersHandler handles operator account management (admin only).
type UsersHandler struct {
	DB *sql.DB
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		internalError(w, r, "listing users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	f := fieldErrors{}
	f.check(req.Username != "", "username", "required")
	f.check(req.Role == model.RoleAdmin || req.Role == model.RoleManager || req.Role == model.RoleUser,
		"role", "must be admin, manager or user")
	if err := model.ValidatePassword(req.Password); err != nil {
		f.check(false, "password", err.Error())
	}
	if err := f.err("invalid user"); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(w, r, "hashing password", err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, string(hash), req.Role)
	if db.IsUniqueViolation(err) {
		writeError(w, r, apperr.Conflict("username already exists"))
		return
	}
	if err != nil {
		internalError(w, r, "creating user", err)
		return
	}

	slog.Info("user created", "user", username(r), "new_user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}
