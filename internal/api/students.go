package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/armarios/internal/apperr"
	"github.com/erazemk/armarios/internal/db"
	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/store"
)

// StudentsHandler handles student lookups and registration.
type StudentsHandler struct {
	DB *sql.DB
}

// List handles GET /api/students.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	f := fieldErrors{}
	courseID := queryID(r, "courseId", f)
	if err := f.err("invalid filter"); err != nil {
		writeError(w, r, err)
		return
	}

	students, err := store.ListStudents(r.Context(), h.DB, courseID)
	if err != nil {
		internalError(w, r, "listing students", err)
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	jsonResponse(w, http.StatusOK, students)
}

// Get handles GET /api/students/{id}.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	student, err := store.GetStudent(r.Context(), h.DB, id)
	if err != nil {
		internalError(w, r, "getting student", err)
		return
	}
	if student == nil {
		writeError(w, r, apperr.NotFound("student not found"))
		return
	}
	jsonResponse(w, http.StatusOK, student)
}

// Create handles POST /api/students.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	course, err := store.GetCourse(r.Context(), h.DB, req.CourseID)
	if err != nil {
		internalError(w, r, "getting course", err)
		return
	}
	if course == nil {
		writeError(w, r, apperr.NotFound("course not found"))
		return
	}

	student, err := store.CreateStudent(r.Context(), h.DB, req.student())
	if db.IsUniqueViolation(err) {
		writeError(w, r, apperr.Conflict("a student with this matricula or email already exists"))
		return
	}
	if err != nil {
		internalError(w, r, "creating student", err)
		return
	}

	slog.Info("student created", "user", username(r), "student", student.ID, "matricula", student.Matricula)
	jsonResponse(w, http.StatusCreated, student)
}

// CoursesHandler handles course lookups and creation.
type CoursesHandler struct {
	DB *sql.DB
}

// List handles GET /api/courses.
func (h *CoursesHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := store.ListCourses(r.Context(), h.DB)
	if err != nil {
		internalError(w, r, "listing courses", err)
		return
	}
	if courses == nil {
		courses = []model.Course{}
	}
	jsonResponse(w, http.StatusOK, courses)
}

// Get handles GET /api/courses/{id}.
func (h *CoursesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	course, err := store.GetCourse(r.Context(), h.DB, id)
	if err != nil {
		internalError(w, r, "getting course", err)
		return
	}
	if course == nil {
		writeError(w, r, apperr.NotFound("course not found"))
		return
	}
	jsonResponse(w, http.StatusOK, course)
}

// Create handles POST /api/courses.
func (h *CoursesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	course, err := store.CreateCourse(r.Context(), h.DB, req.Nome, req.Codigo)
	if db.IsUniqueViolation(err) {
		writeError(w, r, apperr.Conflict("a course with this codigo already exists"))
		return
	}
	if err != nil {
		internalError(w, r, "creating course", err)
		return
	}

	slog.Info("course created", "user", username(r), "course", course.ID, "codigo", course.Codigo)
	jsonResponse(w, http.StatusCreated, course)
}
