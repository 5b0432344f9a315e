package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/rental"
)

// NewRouter creates the API router with all endpoints registered. stats may
// be nil when no cache is configured.
func NewRouter(db *sql.DB, jwtSecret string, manager *rental.Manager, stats StatsCache) http.Handler {
	if manager == nil {
		manager = rental.NewManager(db)
	}

	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	rentalsHandler := &RentalsHandler{DB: db, Manager: manager, Stats: stats}
	lockersHandler := &LockersHandler{DB: db, Now: manager.Now, Stats: stats}
	studentsHandler := &StudentsHandler{DB: db}
	coursesHandler := &CoursesHandler{DB: db}
	dashboardHandler := &DashboardHandler{DB: db, Now: manager.Now, Cache: stats}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))

	// Rentals (all roles), export (manager+).
	mux.Handle("POST /api/rentals", authMW(http.HandlerFunc(rentalsHandler.Create)))
	mux.Handle("GET /api/rentals", authMW(http.HandlerFunc(rentalsHandler.List)))
	mux.Handle("GET /api/rentals/export", authMW(requireManager(http.HandlerFunc(rentalsHandler.Export))))
	mux.Handle("GET /api/rentals/{id}", authMW(http.HandlerFunc(rentalsHandler.Get)))
	mux.Handle("PATCH /api/rentals/{id}", authMW(http.HandlerFunc(rentalsHandler.Return)))
	mux.Handle("PATCH /api/rentals/{id}/return", authMW(http.HandlerFunc(rentalsHandler.Return)))

	// Lockers: read (all roles), write (manager+).
	mux.Handle("GET /api/lockers", authMW(http.HandlerFunc(lockersHandler.List)))
	mux.Handle("POST /api/lockers", authMW(requireManager(http.HandlerFunc(lockersHandler.Create))))
	mux.Handle("GET /api/lockers/{id}", authMW(http.HandlerFunc(lockersHandler.Get)))
	mux.Handle("PUT /api/lockers/{id}", authMW(requireManager(http.HandlerFunc(lockersHandler.Update))))
	mux.Handle("DELETE /api/lockers/{id}", authMW(requireManager(http.HandlerFunc(lockersHandler.Delete))))

	// Students and courses: read (all roles), write (manager+).
	mux.Handle("GET /api/students", authMW(http.HandlerFunc(studentsHandler.List)))
	mux.Handle("POST /api/students", authMW(requireManager(http.HandlerFunc(studentsHandler.Create))))
	mux.Handle("GET /api/students/{id}", authMW(http.HandlerFunc(studentsHandler.Get)))
	mux.Handle("GET /api/courses", authMW(http.HandlerFunc(coursesHandler.List)))
	mux.Handle("POST /api/courses", authMW(requireManager(http.HandlerFunc(coursesHandler.Create))))
	mux.Handle("GET /api/courses/{id}", authMW(http.HandlerFunc(coursesHandler.Get)))

	// Dashboard (all roles).
	mux.Handle("GET /api/dashboard/stats", authMW(http.HandlerFunc(dashboardHandler.Stats)))

	return mux
}
