package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/armarios/internal/apperr"
	"github.com/erazemk/armarios/internal/db"
	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/store"
)

// LockersHandler handles locker endpoints. Locker status is never written
// here; only renting and returning change it.
type LockersHandler struct {
	DB  *sql.DB
	Now func() time.Time
	// Stats is optional and dropped after a locker is created or deleted.
	Stats StatsCache
}

// List handles GET /api/lockers.
func (h *LockersHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := lockerFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	lockers, err := store.ListLockers(r.Context(), h.DB, filter, h.Now())
	if err != nil {
		internalError(w, r, "listing lockers", err)
		return
	}
	if lockers == nil {
		lockers = []model.LockerView{}
	}
	jsonResponse(w, http.StatusOK, lockers)
}

// Get handles GET /api/lockers/{id}.
func (h *LockersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondView(w, r, id, http.StatusOK)
}

func (h *LockersHandler) respondView(w http.ResponseWriter, r *http.Request, id int64, status int) {
	v, err := store.GetLockerView(r.Context(), h.DB, id, h.Now())
	if err != nil {
		internalError(w, r, "getting locker", err)
		return
	}
	if v == nil {
		writeError(w, r, apperr.NotFound("locker not found"))
		return
	}
	jsonResponse(w, status, v)
}

func (h *LockersHandler) checkCourse(r *http.Request, courseID int64) error {
	course, err := store.GetCourse(r.Context(), h.DB, courseID)
	if err != nil {
		return err
	}
	if course == nil {
		return apperr.NotFound("course not found")
	}
	return nil
}

// Create handles POST /api/lockers.
func (h *LockersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req lockerRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.checkCourse(r, req.CourseID); err != nil {
		writeError(w, r, err)
		return
	}

	locker, err := store.CreateLocker(r.Context(), h.DB, req.Numero, req.Building, req.CourseID)
	if db.IsUniqueViolation(err) {
		writeError(w, r, apperr.Conflict("a locker with this numero already exists"))
		return
	}
	if err != nil {
		internalError(w, r, "creating locker", err)
		return
	}

	slog.Info("locker created", "user", username(r), "locker", locker.ID, "numero", locker.Numero)
	invalidateStats(r.Context(), h.Stats)
	h.respondView(w, r, locker.ID, http.StatusCreated)
}

// Update handles PUT /api/lockers/{id}.
func (h *LockersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req lockerRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	existing, err := store.GetLocker(r.Context(), h.DB, id)
	if err != nil {
		internalError(w, r, "getting locker", err)
		return
	}
	if existing == nil || existing.DeletedAt != nil {
		writeError(w, r, apperr.NotFound("locker not found"))
		return
	}
	if err := h.checkCourse(r, req.CourseID); err != nil {
		writeError(w, r, err)
		return
	}

	err = store.UpdateLocker(r.Context(), h.DB, id, req.Numero, req.Building, req.CourseID)
	if db.IsUniqueViolation(err) {
		writeError(w, r, apperr.Conflict("a locker with this numero already exists"))
		return
	}
	if err != nil {
		internalError(w, r, "updating locker", err)
		return
	}

	slog.Info("locker updated", "user", username(r), "locker", id, "numero", req.Numero)
	h.respondView(w, r, id, http.StatusOK)
}

// Delete handles DELETE /api/lockers/{id}.
func (h *LockersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	deleted, err := store.DeleteLocker(r.Context(), h.DB, id)
	if errors.Is(err, store.ErrLockerRented) {
		writeError(w, r, apperr.Conflict("this locker has an active rental"))
		return
	}
	if err != nil {
		internalError(w, r, "deleting locker", err)
		return
	}
	if !deleted {
		writeError(w, r, apperr.NotFound("locker not found"))
		return
	}

	slog.Info("locker deleted", "user", username(r), "locker", id)
	invalidateStats(r.Context(), h.Stats)
	jsonMessage(w, http.StatusOK, "locker deleted")
}
