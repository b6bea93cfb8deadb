package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alexey3476/CoC-Telegramm/internal/config"
	"github.com/Alexey3476/CoC-Telegramm/internal/reminder"
	"github.com/Alexey3476/CoC-Telegramm/internal/store"
)

type fakeDriver struct {
	mu      sync.Mutex
	enabled bool
	runs    int
	result  *reminder.CycleResult
	err     error
}

func (f *fakeDriver) RunOnce(ctx context.Context) (*reminder.CycleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.result, f.err
}

func (f *fakeDriver) set(res *reminder.CycleResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = res, err
}

func (f *fakeDriver) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeDriver) Last() (*reminder.CycleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeDriver) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeDriver) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *fakeDriver) Interval() time.Duration { return 10 * time.Minute }

func testConfig() *config.Config {
	return &config.Config{
		CORSAllowOrigins: []string{"http://localhost:3000"},
		Reminder: config.Reminder{
			Enabled:  true,
			Window:   4 * time.Hour,
			Interval: 10 * time.Minute,
			Cooldown: time.Hour,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *store.SQLite, *fakeDriver) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	driver := &fakeDriver{enabled: true}
	srv := httptest.NewServer(NewRouter(s, driver, cfg))
	t.Cleanup(srv.Close)
	return srv, s, driver
}

func do(t *testing.T, method, url, body string, header map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, testConfig())

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Process-Time"))

	resp, body = do(t, http.MethodGet, srv.URL+"/health/db", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sqlite", body["backend"])
}

func TestGroupsBindingsAndCooldowns(t *testing.T) {
	srv, s, _ := newTestServer(t, testConfig())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, store.Binding{UserID: 1, GroupID: -100, DisplayName: "Alice", PlayerTag: "#a"}))
	require.NoError(t, s.Upsert(ctx, store.Binding{UserID: 2, GroupID: -200, DisplayName: "Bob", PlayerTag: "#B"}))
	require.NoError(t, s.Bump(ctx, -100, []int64{1}, time.Now()))

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/groups", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/groups/-100/bindings", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	bindings := body["bindings"].([]interface{})
	require.Len(t, bindings, 1)
	assert.Equal(t, "#A", bindings[0].(map[string]interface{})["player_tag"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/groups/-100/cooldowns", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3600), body["cooldown_seconds"])
	cooldowns := body["cooldowns"].([]interface{})
	require.Len(t, cooldowns, 1)
	assert.Equal(t, true, cooldowns[0].(map[string]interface{})["cooling_down"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/groups/abc/bindings", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_GROUP_ID", body["error"].(map[string]interface{})["code"])
}

func TestRunReminders(t *testing.T) {
	srv, _, driver := newTestServer(t, testConfig())
	driver.set(&reminder.CycleResult{
		CycleID:     "c1",
		Eligibility: reminder.Eligibility{Due: true, Reason: reminder.ReasonDue, NonCompliant: []string{"#A"}},
		GroupsFound: 1,
		GroupsSent:  1,
		Notified:    1,
		Groups:      []reminder.GroupResult{{GroupID: -100, Recipients: []int64{1}, Sent: true}},
	}, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/reminders/run", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "c1", body["cycle_id"])
	assert.Equal(t, float64(1), body["notified"])

	driver.set(nil, reminder.ErrCycleInProgress)
	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/reminders/run", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CYCLE_IN_PROGRESS", body["error"].(map[string]interface{})["code"])
}

func TestEnabledToggle(t *testing.T) {
	srv, _, driver := newTestServer(t, testConfig())

	resp, body := do(t, http.MethodPut, srv.URL+"/api/v1/reminders/enabled", `{"enabled": false}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["enabled"])
	assert.False(t, driver.Enabled())

	_, body = do(t, http.MethodGet, srv.URL+"/api/v1/reminders/enabled", "", nil)
	assert.Equal(t, false, body["enabled"])

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/v1/reminders/enabled", `{"on": true}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, srv.URL+"/api/v1/reminders/enabled", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminToken(t *testing.T) {
	cfg := testConfig()
	cfg.APIAdminToken = "s3cret"
	srv, _, driver := newTestServer(t, cfg)
	driver.set(&reminder.CycleResult{CycleID: "c1"}, nil)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/reminders/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, driver.runCount())

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/reminders/run", "", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/reminders/status", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads stay open")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	srv, _, _ := newTestServer(t, cfg)

	resp, _ := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", body["error"].(map[string]interface{})["code"])
}
