package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/armarios/internal/auth"
	"github.com/erazemk/armarios/internal/db"
	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/rental"
	"github.com/erazemk/armarios/internal/store"
)

const testJWTSecret = "test-secret"

// testNow is the clock for every test server.
var testNow = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	db    *sql.DB
	token string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return setupTestServerWithStats(t, nil)
}

// setupTestServerWithStats starts a test server whose dashboard reads go
// through stats.
func setupTestServerWithStats(t *testing.T, stats StatsCache) *testServer {
	t.Helper()
	database := db.NewTestDB(t)

	manager := rental.NewManager(database)
	manager.Clock = func() time.Time { return testNow }
	manager.TxTimeout = 10 * time.Second

	server := httptest.NewServer(RequestIDMiddleware(NewRouter(database, testJWTSecret, manager, stats)))
	t.Cleanup(server.Close)

	// Create admin user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateUser(ctx, database, "admin", string(hash), model.RoleAdmin); err != nil {
		t.Fatalf("creating admin: %v", err)
	}

	ts := &testServer{Server: server, db: database}

	var login loginResponse
	status := ts.call(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "password"}, &login)
	if status != http.StatusOK {
		t.Fatalf("login failed: %d", status)
	}
	if login.Token == "" {
		t.Fatal("empty token from login")
	}
	ts.token = login.Token
	return ts
}

// call sends a JSON request and decodes the response into out when non-nil.
func (ts *testServer) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// seed creates a course, students S1 and S2 and locker A-01 through the API.
func (ts *testServer) seed(t *testing.T) (lockerID int64, students []int64) {
	t.Helper()

	var course model.Course
	if s := ts.call(t, "POST", "/api/courses", ts.token, map[string]string{"nome": "Engenharia", "codigo": "eng"}, &course); s != http.StatusCreated {
		t.Fatalf("create course: %d", s)
	}
	if course.Codigo != "ENG" {
		t.Errorf("expected upper-cased codigo, got %q", course.Codigo)
	}

	for _, m := range []string{"S1", "S2"} {
		var st model.Student
		s := ts.call(t, "POST", "/api/students", ts.token, map[string]any{
			"nome": "Aluno " + m, "matricula": m, "courseId": course.ID,
		}, &st)
		if s != http.StatusCreated {
			t.Fatalf("create student %s: %d", m, s)
		}
		students = append(students, st.ID)
	}

	var locker model.LockerView
	s := ts.call(t, "POST", "/api/lockers", ts.token, map[string]any{
		"numero": "A-01", "building": "a", "courseId": course.ID,
	}, &locker)
	if s != http.StatusCreated {
		t.Fatalf("create locker: %d", s)
	}
	return locker.ID, students
}

func rentBody(lockerID, studentID int64, start, expected string) map[string]any {
	return map[string]any{
		"lockerId":     lockerID,
		"studentId":    studentID,
		"dataInicio":   start,
		"dataPrevista": expected,
	}
}

func TestLoginEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	if s := ts.call(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"}, nil); s != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", s)
	}

	var body errorBody
	if s := ts.call(t, "POST", "/api/auth/login", "", map[string]string{}, &body); s != http.StatusBadRequest {
		t.Errorf("expected 400 for empty credentials, got %d", s)
	}
	if body.Code != "VALIDATION_ERROR" || body.Fields["username"] == "" {
		t.Errorf("unexpected error body %+v", body)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	ts := setupTestServer(t)

	if s := ts.call(t, "GET", "/api/lockers", "", nil, nil); s != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", s)
	}
	if s := ts.call(t, "GET", "/api/lockers", "garbage", nil, nil); s != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", s)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := setupTestServer(t)

	if s := ts.call(t, "POST", "/api/auth/logout", ts.token, nil, nil); s != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", s)
	}
	if s := ts.call(t, "GET", "/api/lockers", ts.token, nil, nil); s != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", s)
	}
}

func TestRoleBasedAccess(t *testing.T) {
	ts := setupTestServer(t)

	hash, _ := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	u, _ := store.CreateUser(context.Background(), ts.db, "user1", string(hash), model.RoleUser)
	userToken, _ := auth.GenerateToken(testJWTSecret, u.ID, "user1", model.RoleUser)

	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/api/lockers", http.StatusOK},
		{"GET", "/api/dashboard/stats", http.StatusOK},
		{"POST", "/api/lockers", http.StatusForbidden},
		{"POST", "/api/courses", http.StatusForbidden},
		{"GET", "/api/rentals/export", http.StatusForbidden},
		{"GET", "/api/users", http.StatusForbidden},
	}
	for _, tt := range tests {
		if s := ts.call(t, tt.method, tt.path, userToken, map[string]string{}, nil); s != tt.want {
			t.Errorf("%s %s as user: expected %d, got %d", tt.method, tt.path, tt.want, s)
		}
	}
}

func TestRentReturnFlow(t *testing.T) {
	ts := setupTestServer(t)
	lockerID, students := ts.seed(t)

	var created rentalResponse
	s := ts.call(t, "POST", "/api/rentals", ts.token, rentBody(lockerID, students[0], "2024-02-01", "2024-12-31"), &created)
	if s != http.StatusCreated {
		t.Fatalf("expected 201 for first rent, got %d", s)
	}
	if created.Rental == nil || !created.Rental.IsActive {
		t.Fatalf("unexpected rental %+v", created.Rental)
	}

	var conflict errorBody
	s = ts.call(t, "POST", "/api/rentals", ts.token, rentBody(lockerID, students[1], "2024-02-01", "2024-12-31"), &conflict)
	if s != http.StatusConflict {
		t.Fatalf("expected 409 for occupied locker, got %d", s)
	}
	if conflict.Message != "this locker is not available" || conflict.Code != "CONFLICT" {
		t.Errorf("unexpected conflict body %+v", conflict)
	}

	var view model.LockerView
	ts.call(t, "GET", fmt.Sprintf("/api/lockers/%d", lockerID), ts.token, nil, &view)
	if view.Status != model.LockerStatusOccupied || view.ActiveRental == nil || view.ActiveRental.Student.Matricula != "S1" {
		t.Errorf("unexpected locker view %+v", view)
	}

	var returned rentalResponse
	s = ts.call(t, "PATCH", fmt.Sprintf("/api/rentals/%d/return", created.Rental.ID), ts.token, nil, &returned)
	if s != http.StatusOK {
		t.Fatalf("expected 200 for return, got %d", s)
	}
	if returned.Rental.IsActive || returned.Rental.Dates.Returned == nil {
		t.Errorf("expected closed rental, got %+v", returned.Rental)
	}

	s = ts.call(t, "PATCH", fmt.Sprintf("/api/rentals/%d", created.Rental.ID), ts.token, nil, &conflict)
	if s != http.StatusConflict {
		t.Errorf("expected 409 for second return, got %d", s)
	}

	view = model.LockerView{}
	ts.call(t, "GET", fmt.Sprintf("/api/lockers/%d", lockerID), ts.token, nil, &view)
	if view.Status != model.LockerStatusAvailable || view.ActiveRental != nil {
		t.Errorf("expected available locker after return, got %+v", view)
	}

	if s := ts.call(t, "POST", "/api/rentals", ts.token, rentBody(lockerID, students[1], "2024-09-01", "2024-12-31"), nil); s != http.StatusCreated {
		t.Errorf("expected 201 after return, got %d", s)
	}

	var history []model.RentalView
	ts.call(t, "GET", fmt.Sprintf("/api/rentals?lockerId=%d", lockerID), ts.token, nil, &history)
	if len(history) != 2 {
		t.Errorf("expected 2 rentals in history, got %d", len(history))
	}
}

func TestRentErrors(t *testing.T) {
	ts := setupTestServer(t)
	lockerID, students := ts.seed(t)

	tests := []struct {
		name  string
		body  any
		want  int
		field string
	}{
		{"expected before start", rentBody(lockerID, students[0], "2024-09-01", "2024-08-01"), http.StatusBadRequest, "dataPrevista"},
		{"expected equals start", rentBody(lockerID, students[0], "2024-09-01", "2024-09-01"), http.StatusBadRequest, "dataPrevista"},
		{"bad date", rentBody(lockerID, students[0], "yesterday", "2024-12-31"), http.StatusBadRequest, "dataInicio"},
		{"missing locker id", rentBody(0, students[0], "2024-09-01", "2024-12-31"), http.StatusBadRequest, "lockerId"},
		{"unknown locker", rentBody(999, students[0], "2024-09-01", "2024-12-31"), http.StatusNotFound, ""},
		{"unknown student", rentBody(lockerID, 999, "2024-09-01", "2024-12-31"), http.StatusNotFound, ""},
		{"malformed body", "not an object", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		var body errorBody
		s := ts.call(t, "POST", "/api/rentals", ts.token, tt.body, &body)
		if s != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, s)
			continue
		}
		if tt.field != "" && body.Fields[tt.field] == "" {
			t.Errorf("%s: expected a reason for %s, got %+v", tt.name, tt.field, body.Fields)
		}
	}

	var view model.LockerView
	ts.call(t, "GET", fmt.Sprintf("/api/lockers/%d", lockerID), ts.token, nil, &view)
	if view.Status != model.LockerStatusAvailable {
		t.Errorf("failed rents must not change the locker, got %q", view.Status)
	}

	if s := ts.call(t, "PATCH", "/api/rentals/999/return", ts.token, nil, nil); s != http.StatusNotFound {
		t.Errorf("expected 404 for unknown rental, got %d", s)
	}
	if s := ts.call(t, "PATCH", "/api/rentals/abc/return", ts.token, nil, nil); s != http.StatusBadRequest {
		t.Errorf("expected 400 for bad rental id, got %d", s)
	}
}

func TestConcurrentRentsAPI(t *testing.T) {
	ts := setupTestServer(t)
	lockerID, students := ts.seed(t)

	var wg sync.WaitGroup
	statuses := make([]int, len(students))
	for i, studentID := range students {
		wg.Add(1)
		data, _ := json.Marshal(rentBody(lockerID, studentID, "2024-02-01", "2024-12-31"))
		req, _ := http.NewRequest("POST", ts.URL+"/api/rentals", bytes.NewReader(data))
		req.Header.Set("Authorization", "Bearer "+ts.token)
		go func() {
			defer wg.Done()
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Errorf("rent request: %v", err)
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	counts := map[int]int{}
	for _, s := range statuses {
		counts[s]++
	}
	if counts[http.StatusCreated] != 1 || counts[http.StatusConflict] != 1 {
		t.Errorf("expected one 201 and one 409, got %v", statuses)
	}
}

func TestOverdueIsDerived(t *testing.T) {
	ts := setupTestServer(t)
	lockerID, students := ts.seed(t)

	if s := ts.call(t, "POST", "/api/rentals", ts.token, rentBody(lockerID, students[0], "2024-02-01", "2024-08-31"), nil); s != http.StatusCreated {
		t.Fatalf("expected 201, got %d", s)
	}

	var lockers []model.LockerView
	ts.call(t, "GET", "/api/lockers?status=overdue", ts.token, nil, &lockers)
	if len(lockers) != 1 || !lockers[0].ActiveRental.Overdue {
		t.Fatalf("expected one overdue locker, got %+v", lockers)
	}

	var stats model.DashboardStats
	ts.call(t, "GET", "/api/dashboard/stats", ts.token, nil, &stats)
	if stats != (model.DashboardStats{Total: 1, Available: 0, Occupied: 1, Overdue: 1}) {
		t.Errorf("unexpected stats %+v", stats)
	}

	var stored string
	ts.db.QueryRow(`SELECT status FROM lockers WHERE id = ?`, lockerID).Scan(&stored)
	if stored != model.LockerStatusOccupied {
		t.Errorf("overdue must not be stored, got %q", stored)
	}

	var body errorBody
	if s := ts.call(t, "GET", "/api/lockers?status=late", ts.token, nil, &body); s != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status filter, got %d", s)
	}
}

func TestLockerManagement(t *testing.T) {
	ts := setupTestServer(t)
	lockerID, students := ts.seed(t)

	var locker model.LockerView
	ts.call(t, "GET", fmt.Sprintf("/api/lockers/%d", lockerID), ts.token, nil, &locker)

	if s := ts.call(t, "POST", "/api/lockers", ts.token, map[string]any{
		"numero": "A-01", "building": "B", "courseId": locker.Course.ID,
	}, nil); s != http.StatusConflict {
		t.Errorf("expected 409 for duplicate numero, got %d", s)
	}

	var body errorBody
	if s := ts.call(t, "POST", "/api/lockers", ts.token, map[string]any{
		"numero": "Z-01", "building": "Z", "courseId": locker.Course.ID,
	}, &body); s != http.StatusBadRequest || body.Fields["building"] == "" {
		t.Errorf("expected 400 for unknown building, got %d %+v", s, body)
	}

	if s := ts.call(t, "POST", "/api/lockers", ts.token, map[string]any{
		"numero": "B-01", "building": "B", "courseId": 999,
	}, nil); s != http.StatusNotFound {
		t.Errorf("expected 404 for unknown course, got %d", s)
	}

	var updated model.LockerView
	if s := ts.call(t, "PUT", fmt.Sprintf("/api/lockers/%d", lockerID), ts.token, map[string]any{
		"numero": "A-10", "building": "A", "courseId": locker.Course.ID,
	}, &updated); s != http.StatusOK || updated.Numero != "A-10" {
		t.Errorf("unexpected update result %d %+v", s, updated)
	}

	ts.call(t, "POST", "/api/rentals", ts.token, rentBody(lockerID, students[0], "2024-02-01", "2024-12-31"), nil)
	if s := ts.call(t, "DELETE", fmt.Sprintf("/api/lockers/%d", lockerID), ts.token, nil, nil); s != http.StatusConflict {
		t.Errorf("expected 409 deleting a rented locker, got %d", s)
	}
	if s := ts.call(t, "DELETE", "/api/lockers/999", ts.token, nil, nil); s != http.StatusNotFound {
		t.Errorf("expected 404 deleting unknown locker, got %d", s)
	}
}

func TestStudentValidation(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)

	var courses []model.Course
	ts.call(t, "GET", "/api/courses", ts.token, nil, &courses)
	if len(courses) != 1 {
		t.Fatalf("expected 1 course, got %d", len(courses))
	}

	var body errorBody
	s := ts.call(t, "POST", "/api/students", ts.token, map[string]any{
		"nome": "Al", "matricula": "", "courseId": courses[0].ID, "email": "not-an-email",
	}, &body)
	if s != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", s)
	}
	for _, field := range []string{"nome", "matricula", "email"} {
		if body.Fields[field] == "" {
			t.Errorf("expected a reason for %s, got %+v", field, body.Fields)
		}
	}

	if s := ts.call(t, "POST", "/api/students", ts.token, map[string]any{
		"nome": "Outro Aluno", "matricula": "S1", "courseId": courses[0].ID,
	}, nil); s != http.StatusConflict {
		t.Errorf("expected 409 for duplicate matricula, got %d", s)
	}
}

func TestExportRentals(t *testing.T) {
	ts := setupTestServer(t)
	lockerID, students := ts.seed(t)
	ts.call(t, "POST", "/api/rentals", ts.token, rentBody(lockerID, students[0], "2024-02-01", "2024-12-31"), nil)

	req, _ := http.NewRequest("GET", ts.URL+"/api/rentals/export", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("unexpected content type %q", ct)
	}
	if resp.ContentLength <= 0 {
		t.Error("expected a non-empty workbook")
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := setupTestServer(t)

	req, _ := http.NewRequest("GET", ts.URL+"/api/lockers", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}
}

// memStats is an in-memory StatsCache.
type memStats struct {
	mu    sync.Mutex
	stats *model.DashboardStats
}

func (m *memStats) Get(context.Context) (*model.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil {
		return nil, nil
	}
	s := *m.stats
	return &s, nil
}

func (m *memStats) Put(_ context.Context, stats *model.DashboardStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *stats
	m.stats = &s
	return nil
}

func (m *memStats) Invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = nil
	return nil
}

func TestDashboardCacheInvalidation(t *testing.T) {
	stats := &memStats{}
	ts := setupTestServerWithStats(t, stats)
	lockerID, students := ts.seed(t)

	getStats := func() model.DashboardStats {
		t.Helper()
		var got model.DashboardStats
		if s := ts.call(t, "GET", "/api/dashboard/stats", ts.token, nil, &got); s != http.StatusOK {
			t.Fatalf("GET stats: %d", s)
		}
		return got
	}

	if got := getStats(); got != (model.DashboardStats{Total: 1, Available: 1}) {
		t.Fatalf("unexpected stats %+v", got)
	}
	if cached, _ := stats.Get(context.Background()); cached == nil {
		t.Fatal("expected stats to be cached")
	}

	var locker model.LockerView
	ts.call(t, "GET", fmt.Sprintf("/api/lockers/%d", lockerID), ts.token, nil, &locker)
	var created model.LockerView
	if s := ts.call(t, "POST", "/api/lockers", ts.token, map[string]any{
		"numero": "A-02", "building": "A", "courseId": locker.Course.ID,
	}, &created); s != http.StatusCreated {
		t.Fatalf("create locker: %d", s)
	}
	if got := getStats(); got != (model.DashboardStats{Total: 2, Available: 2}) {
		t.Errorf("expected stats refreshed after create, got %+v", got)
	}

	if s := ts.call(t, "POST", "/api/rentals", ts.token, rentBody(lockerID, students[0], "2024-02-01", "2024-12-31"), nil); s != http.StatusCreated {
		t.Fatalf("rent: %d", s)
	}
	if got := getStats(); got != (model.DashboardStats{Total: 2, Available: 1, Occupied: 1}) {
		t.Errorf("expected stats refreshed after rent, got %+v", got)
	}

	if s := ts.call(t, "DELETE", fmt.Sprintf("/api/lockers/%d", created.ID), ts.token, nil, nil); s != http.StatusOK {
		t.Fatalf("delete locker: %d", s)
	}
	if got := getStats(); got != (model.DashboardStats{Total: 1, Occupied: 1}) {
		t.Errorf("expected stats refreshed after delete, got %+v", got)
	}
}

func TestInvariantViolationLoggedOnce(t *testing.T) {
	ts := setupTestServer(t)
	lockerID, students := ts.seed(t)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	if _, err := ts.db.Exec(`UPDATE lockers SET status = 'occupied' WHERE id = ?`, lockerID); err != nil {
		t.Fatalf("marking locker occupied: %v", err)
	}

	var body errorBody
	s := ts.call(t, "POST", "/api/rentals", ts.token, rentBody(lockerID, students[0], "2024-02-01", "2024-12-31"), &body)
	if s != http.StatusInternalServerError || body.Code != "INVARIANT_VIOLATION" {
		t.Fatalf("expected 500 INVARIANT_VIOLATION, got %d %+v", s, body)
	}

	if n := strings.Count(logs.String(), "invariant violation"); n != 1 {
		t.Errorf("expected one invariant log line, got %d:\n%s", n, logs.String())
	}
}
