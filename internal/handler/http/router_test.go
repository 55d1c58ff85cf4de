package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/config"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/clock"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-live-attendance/internal/repository/sqlite"
	attendancesvc "github.com/cmlabs-hris/hris-live-attendance/internal/service/attendance"
	livesvc "github.com/cmlabs-hris/hris-live-attendance/internal/service/live"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type routerFixture struct {
	router *chi.Mux
	live   live.LiveService
	jwt    jwt.Service
	clock  *clock.FakeClock
	token  string
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()

	fake := clock.Fake(time.Date(2026, 3, 16, 9, 17, 0, 0, time.UTC))
	store, err := sqlite.NewMemory(sqlite.WithClock(fake))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	shift, err := sqlite.NewShiftRepository(store).Upsert(ctx, attendance.Shift{
		ID: "day", CompanyID: "company-1", Name: "Day", StartTime: "09:00", EndTime: "18:00",
	})
	require.NoError(t, err)
	employees := sqlite.NewEmployeeRepository(store)
	for _, emp := range []attendance.Employee{
		{ID: "e1", CompanyID: "company-1", FullName: "Ana", Department: "Engineering", Location: "HQ", ShiftID: &shift.ID},
		{ID: "e2", CompanyID: "company-1", FullName: "Budi", Department: "Sales", Location: "HQ", ShiftID: &shift.ID},
	} {
		_, err := employees.Upsert(ctx, emp)
		require.NoError(t, err)
	}

	jwtService, err := jwt.NewJWTService("test-secret", "1h")
	require.NoError(t, err)
	token, _, err := jwtService.GenerateAccessToken("user-1", "company-1")
	require.NoError(t, err)

	sessions := sqlite.NewSessionRepository(store)
	calc := attendancesvc.NewCalculator(time.UTC)
	liveService := livesvc.NewLiveService(sessions, calc, time.UTC, livesvc.ControllerConfig{}, sse.NewHub(), fake)
	t.Cleanup(liveService.Shutdown)

	cfg := &config.Config{
		App:  config.AppConfig{Env: "test", LogLevel: "error"},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	return routerFixture{
		router: NewRouter(cfg, jwtService,
			NewAttendanceHandler(attendancesvc.NewSessionService(sessions, calc)),
			NewLiveHandler(liveService, jwtService),
		),
		live:  liveService,
		jwt:   jwtService,
		clock: fake,
		token: token,
	}
}

func (f routerFixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestRouter_AttendanceCommands(t *testing.T) {
	f := newRouterFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/v1/attendance/clock-in", `{"employee_id":"e1"}`)
	require.Equal(t, http.StatusCreated, code)
	var session attendance.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, "active", session.Status)
	assert.True(t, session.IsLate)
	assert.Equal(t, 17, session.LateMinutes)

	code, env = f.do(t, http.MethodPost, "/api/v1/attendance/clock-in", `{"employee_id":"e1"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/attendance/break-end", `{"employee_id":"e1"}`)
	assert.Equal(t, http.StatusConflict, code)

	f.clock.Advance(time.Hour)
	code, env = f.do(t, http.MethodPost, "/api/v1/attendance/break-start", `{"employee_id":"e1"}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, "on_break", session.Status)

	code, env = f.do(t, http.MethodGet, "/api/v1/attendance/e1/2026-03-16", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Len(t, session.Breaks, 1)
}

func TestRouter_AttendanceErrors(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"invalid json", http.MethodPost, "/api/v1/attendance/clock-in", `{`, http.StatusBadRequest},
		{"missing employee", http.MethodPost, "/api/v1/attendance/clock-in", `{}`, http.StatusUnprocessableEntity},
		{"unknown employee", http.MethodPost, "/api/v1/attendance/clock-in", `{"employee_id":"ghost"}`, http.StatusNotFound},
		{"clock out without session", http.MethodPost, "/api/v1/attendance/clock-out", `{"employee_id":"e2"}`, http.StatusConflict},
		{"bad date", http.MethodGet, "/api/v1/attendance/e1/16-03-2026", "", http.StatusUnprocessableEntity},
		{"no session", http.MethodGet, "/api/v1/attendance/e1/2026-03-15", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
		})
	}
}

func TestRouter_RequiresAccessToken(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/live", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	streamToken, _, err := f.jwt.GenerateStreamToken("user-1", "company-1")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/live", nil)
	req.Header.Set("Authorization", "Bearer "+streamToken)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_LiveView(t *testing.T) {
	f := newRouterFixture(t)

	_, _ = f.do(t, http.MethodPost, "/api/v1/attendance/clock-in", `{"employee_id":"e1"}`)
	_, _ = f.do(t, http.MethodPost, "/api/v1/attendance/clock-in", `{"employee_id":"e2"}`)

	code, env := f.do(t, http.MethodGet, "/api/v1/live?department=Engineering", "")
	require.Equal(t, http.StatusOK, code)

	var state live.LiveStateResponse
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, "Engineering", state.Department)
	require.NotNil(t, state.Summary)
	assert.Equal(t, 1, state.Summary.TotalActive)
	assert.Equal(t, 1, state.Summary.Working)
	assert.Equal(t, 1, state.Summary.Late)
	require.Len(t, state.Sessions, 1)
	assert.Equal(t, "Ana", state.Sessions[0].EmployeeName)
	assert.True(t, state.IsConnectedOrFresh)

	code, env = f.do(t, http.MethodGet, "/api/v1/live", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, 2, state.Summary.TotalActive)
}

func TestRouter_LiveVisibilityWithoutSubscribers(t *testing.T) {
	f := newRouterFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/v1/live/visibility", `{"visible":false}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env = f.do(t, http.MethodPost, "/api/v1/live/visibility", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Error.Details, "visible")
}

func TestRouter_LiveOffline(t *testing.T) {
	f := newRouterFixture(t)

	f.live.SetOnline(false)
	code, env := f.do(t, http.MethodGet, "/api/v1/live", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)

	code, env = f.do(t, http.MethodPost, "/api/v1/live/reconnect", "")
	require.Equal(t, http.StatusOK, code)
	var state live.LiveStateResponse
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.True(t, state.Online)
}

type streamEvent struct {
	id    string
	name  string
	state live.LiveStateResponse
}

func readEvent(t *testing.T, r *bufio.Reader) streamEvent {
	t.Helper()

	var ev streamEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.state))
		}
	}
}

func TestRouter_LiveStream(t *testing.T) {
	f := newRouterFixture(t)
	server := httptest.NewServer(f.router)
	t.Cleanup(server.Close)

	_, _ = f.do(t, http.MethodPost, "/api/v1/attendance/clock-in", `{"employee_id":"e1"}`)

	resp, err := http.Get(server.URL + "/api/v1/live/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code, env := f.do(t, http.MethodPost, "/api/v1/live/stream-token", "")
	require.Equal(t, http.StatusOK, code)
	var token live.StreamTokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &token))
	assert.Equal(t, 300, token.ExpiresIn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/live/stream?token="+token.Token, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	initial := readEvent(t, reader)
	assert.Equal(t, "live", initial.name)
	assert.Equal(t, "1", initial.id)
	require.NotNil(t, initial.state.Summary)
	assert.Equal(t, 1, initial.state.Summary.TotalActive)

	code, _ = f.do(t, http.MethodPost, "/api/v1/live/visibility", `{"visible":true}`)
	assert.Equal(t, http.StatusOK, code)

	_, _ = f.do(t, http.MethodPost, "/api/v1/attendance/clock-in", `{"employee_id":"e2"}`)
	code, _ = f.do(t, http.MethodPost, "/api/v1/live/refresh", "")
	require.Equal(t, http.StatusOK, code)

	loading := readEvent(t, reader)
	assert.Equal(t, "2", loading.id)
	assert.True(t, loading.state.Loading)

	updated := readEvent(t, reader)
	assert.Equal(t, "3", updated.id)
	assert.False(t, updated.state.Loading)
	assert.Equal(t, 2, updated.state.Summary.TotalActive)
}

func TestRouter_Heartbeat(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte(".")))
}
