package api

import (
	"bytes"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/armarios/internal/apperr"
	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/rental"
	"github.com/erazemk/armarios/internal/report"
	"github.com/erazemk/armarios/internal/store"
)

// RentalsHandler handles renting and returning lockers and the rental history.
type RentalsHandler struct {
	DB      *sql.DB
	Manager *rental.Manager
	// Stats is optional and dropped after every successful rent or return.
	Stats StatsCache
}

type rentalResponse struct {
	Message string        `json:"message"`
	Rental  *model.Rental `json:"rental"`
}

// Create handles POST /api/rentals.
func (h *RentalsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	params, err := req.params()
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.Manager.Rent(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invalidateStats(r.Context(), h.Stats)

	slog.Info("locker rented", "user", username(r), "rental", created.ID, "locker", created.LockerID, "student", created.StudentID)
	jsonResponse(w, http.StatusCreated, rentalResponse{Message: "locker rented", Rental: created})
}

// Return handles PATCH /api/rentals/{id}/return and PATCH /api/rentals/{id}.
// The body is optional; without dataDevolucao the rental closes now.
func (h *RentalsHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req returnRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	returnedAt, err := req.returnedAt()
	if err != nil {
		writeError(w, r, err)
		return
	}

	closed, err := h.Manager.Return(r.Context(), id, returnedAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invalidateStats(r.Context(), h.Stats)

	slog.Info("locker returned", "user", username(r), "rental", closed.ID, "locker", closed.LockerID, "student", closed.StudentID)
	jsonResponse(w, http.StatusOK, rentalResponse{Message: "locker returned", Rental: closed})
}

// List handles GET /api/rentals.
func (h *RentalsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := rentalFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rentals, err := store.ListRentals(r.Context(), h.DB, filter, h.Manager.Now())
	if err != nil {
		internalError(w, r, "listing rentals", err)
		return
	}
	if rentals == nil {
		rentals = []model.RentalView{}
	}
	jsonResponse(w, http.StatusOK, rentals)
}

// Get handles GET /api/rentals/{id}.
func (h *RentalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	v, err := store.GetRentalView(r.Context(), h.DB, id, h.Manager.Now())
	if err != nil {
		internalError(w, r, "getting rental", err)
		return
	}
	if v == nil {
		writeError(w, r, apperr.NotFound("rental not found"))
		return
	}
	jsonResponse(w, http.StatusOK, v)
}

// Export handles GET /api/rentals/export. It accepts the same filters as
// List and responds with an XLSX workbook.
func (h *RentalsHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := rentalFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := h.Manager.Now()
	rentals, err := store.ListRentals(r.Context(), h.DB, filter, now)
	if err != nil {
		internalError(w, r, "listing rentals", err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteRentals(&buf, rentals); err != nil {
		internalError(w, r, "writing rental report", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rentals-%s.xlsx"`, now.Format(time.DateOnly)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to send rental report", "error", err)
	}

	slog.Info("rentals exported", "user", username(r), "rows", len(rentals))
}
