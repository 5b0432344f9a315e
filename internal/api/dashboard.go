package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/armarios/internal/cache"
	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/store"
)

// StatsCache holds a snapshot of the dashboard counts. *cache.StatsCache
// implements it with Redis.
type StatsCache interface {
	Get(ctx context.Context) (*model.DashboardStats, error)
	Put(ctx context.Context, stats *model.DashboardStats) error
	Invalidate(ctx context.Context) error
}

var _ StatsCache = (*cache.StatsCache)(nil)

// invalidateStats drops the cached counts after a change to lockers or
// rentals. Failures are logged; the snapshot then expires with its TTL.
func invalidateStats(ctx context.Context, c StatsCache) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx); err != nil {
		slog.Warn("failed to invalidate dashboard stats", "error", err)
	}
}

// DashboardHandler serves read-only locker counts. The counts are a
// snapshot and are never used to decide a rent or return.
type DashboardHandler struct {
	DB  *sql.DB
	Now func() time.Time
	// Cache is optional. A cache failure falls back to the database.
	Cache StatsCache
}

// Stats handles GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.Cache != nil {
		cached, err := h.Cache.Get(r.Context())
		if err != nil {
			slog.Warn("failed to read cached dashboard stats", "error", err)
		}
		if cached != nil {
			jsonResponse(w, http.StatusOK, cached)
			return
		}
	}

	stats, err := store.GetDashboardStats(r.Context(), h.DB, h.Now())
	if err != nil {
		internalError(w, r, "counting lockers", err)
		return
	}

	if h.Cache != nil {
		if err := h.Cache.Put(r.Context(), stats); err != nil {
			slog.Warn("failed to cache dashboard stats", "error", err)
		}
	}
	jsonResponse(w, http.StatusOK, stats)
}
