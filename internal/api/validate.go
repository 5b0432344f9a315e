package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/armarios/internal/apperr"
	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/overdue"
	"github.com/erazemk/armarios/internal/rental"
	"github.com/erazemk/armarios/internal/store"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

// fieldErrors collects per-field reasons and turns them into one
// validation error.
type fieldErrors map[string]string

func (f fieldErrors) check(ok bool, field, reason string) {
	if !ok {
		if _, seen := f[field]; !seen {
			f[field] = reason
		}
	}
}

func (f fieldErrors) err(message string) error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation(message, f)
}

// decodeJSON decodes a JSON request body into target. An empty body is only
// accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any, allowEmpty bool) error {
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(target)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	return nil
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid "+name, map[string]string{name: "must be a positive integer"})
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter. Zero means
// the parameter was absent.
func queryID(r *http.Request, name string, f fieldErrors) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	f.check(err == nil && id > 0, name, "must be a positive integer")
	return id
}

// parseDate parses a required date field, accepting YYYY-MM-DD or RFC 3339.
func parseDate(raw, field string, f fieldErrors) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		f.check(false, field, "required")
		return time.Time{}
	}
	t, ok := overdue.ParseDate(raw)
	f.check(ok, field, "must be a date (YYYY-MM-DD or RFC 3339)")
	return t
}

type rentRequest struct {
	LockerID     int64  `json:"lockerId"`
	StudentID    int64  `json:"studentId"`
	DataInicio   string `json:"dataInicio"`
	DataPrevista string `json:"dataPrevista"`
}

func (req rentRequest) params() (rental.RentParams, error) {
	f := fieldErrors{}
	f.check(req.LockerID > 0, "lockerId", "required")
	f.check(req.StudentID > 0, "studentId", "required")
	start := parseDate(req.DataInicio, "dataInicio", f)
	expected := parseDate(req.DataPrevista, "dataPrevista", f)
	if !start.IsZero() && !expected.IsZero() {
		f.check(expected.After(start), "dataPrevista", "must be after dataInicio")
	}
	if err := f.err("invalid rental"); err != nil {
		return rental.RentParams{}, err
	}
	return rental.RentParams{
		LockerID:  req.LockerID,
		StudentID: req.StudentID,
		Start:     start,
		Expected:  expected,
	}, nil
}

type returnRequest struct {
	DataDevolucao string `json:"dataDevolucao"`
}

// returnedAt returns the requested return date, or zero for now.
func (req returnRequest) returnedAt() (time.Time, error) {
	if strings.TrimSpace(req.DataDevolucao) == "" {
		return time.Time{}, nil
	}
	f := fieldErrors{}
	t := parseDate(req.DataDevolucao, "dataDevolucao", f)
	return t, f.err("invalid return")
}

type lockerRequest struct {
	Numero   string `json:"numero"`
	Building string `json:"building"`
	CourseID int64  `json:"courseId"`
}

func (req *lockerRequest) validate() error {
	req.Numero = strings.TrimSpace(req.Numero)
	req.Building = strings.ToUpper(strings.TrimSpace(req.Building))

	f := fieldErrors{}
	f.check(req.Numero != "", "numero", "required")
	f.check(len(req.Numero) <= 32, "numero", "must be at most 32 characters")
	f.check(model.ValidBuilding(req.Building), "building", "must be one of "+strings.Join(model.Buildings, ", "))
	f.check(req.CourseID > 0, "courseId", "required")
	return f.err("invalid locker")
}

type studentRequest struct {
	Nome      string `json:"nome"`
	Matricula string `json:"matricula"`
	CourseID  int64  `json:"courseId"`
	Email     string `json:"email"`
	Telefone  string `json:"telefone"`
}

func (req *studentRequest) validate() error {
	req.Nome = strings.TrimSpace(req.Nome)
	req.Matricula = strings.TrimSpace(req.Matricula)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Telefone = strings.TrimSpace(req.Telefone)

	f := fieldErrors{}
	f.check(len(req.Nome) >= 3, "nome", "must be at least 3 characters")
	f.check(req.Matricula != "", "matricula", "required")
	f.check(req.CourseID > 0, "courseId", "required")
	if req.Email != "" {
		addr, err := mail.ParseAddress(req.Email)
		f.check(err == nil && addr.Address == req.Email, "email", "must be a valid email address")
	}
	return f.err("invalid student")
}

func (req studentRequest) student() model.Student {
	return model.Student{
		Nome:      req.Nome,
		Matricula: req.Matricula,
		CourseID:  req.CourseID,
		Email:     req.Email,
		Telefone:  req.Telefone,
	}
}

type courseRequest struct {
	Nome   string `json:"nome"`
	Codigo string `json:"codigo"`
}

func (req *courseRequest) validate() error {
	req.Nome = strings.TrimSpace(req.Nome)
	req.Codigo = strings.ToUpper(strings.TrimSpace(req.Codigo))

	f := fieldErrors{}
	f.check(req.Nome != "", "nome", "required")
	f.check(req.Codigo != "", "codigo", "required")
	return f.err("invalid course")
}

// lockerFilter reads the locker list query parameters.
func lockerFilter(r *http.Request) (store.LockerFilter, error) {
	q := r.URL.Query()
	f := fieldErrors{}

	lq := store.LockerFilter{
		Status:   q.Get("status"),
		Building: strings.ToUpper(strings.TrimSpace(q.Get("building"))),
		Numero:   strings.TrimSpace(q.Get("numero")),
		CourseID: queryID(r, "courseId", f),
	}
	if lq.Status != "" {
		f.check(model.ValidLockerStatus(lq.Status), "status", "must be available, occupied or overdue")
	}
	if lq.Building != "" {
		f.check(model.ValidBuilding(lq.Building), "building", "must be one of "+strings.Join(model.Buildings, ", "))
	}
	return lq, f.err("invalid filter")
}

// rentalFilter reads the rental list query parameters.
func rentalFilter(r *http.Request) (store.RentalFilter, error) {
	f := fieldErrors{}
	rq := store.RentalFilter{
		LockerID:  queryID(r, "lockerId", f),
		StudentID: queryID(r, "studentId", f),
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		f.check(err == nil, "active", "must be true or false")
		rq.Active = &active
	}
	return rq, f.err("invalid filter")
}
