package http_api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strataplan/claustra/internal/models"
	"github.com/strataplan/claustra/pkg/logger"
	_ "github.com/strataplan/claustra/pkg/metrics" // register the service collectors
)

// fakeLockService scripts coordinator outcomes and records what the handlers
// pass down.
type fakeLockService struct {
	grant        *models.LockGrant
	lockErr      error
	refreshed    int64
	heartbeatErr error
	removed      int64
	unlockErr    error
	locks        []*models.FieldLock
	getErr       error
	cleared      int64
	clearErr     error

	lockCalls     int
	unlockCalls   int
	gotBusinessID string
	gotProjectID  string
	gotFieldName  string
	gotActor      models.Actor
	gotFields     []string
}

func (f *fakeLockService) Lock(businessID, projectID, fieldName string, actor models.Actor) (*models.LockGrant, error) {
	f.lockCalls++
	f.gotBusinessID = businessID
	f.gotProjectID = projectID
	f.gotFieldName = fieldName
	f.gotActor = actor
	return f.grant, f.lockErr
}

func (f *fakeLockService) Heartbeat(projectID string, actor models.Actor) (int64, error) {
	f.gotProjectID = projectID
	f.gotActor = actor
	return f.refreshed, f.heartbeatErr
}

func (f *fakeLockService) Unlock(projectID string, actor models.Actor, fields []string) (int64, error) {
	f.unlockCalls++
	f.gotProjectID = projectID
	f.gotActor = actor
	f.gotFields = fields
	return f.removed, f.unlockErr
}

func (f *fakeLockService) GetLocks(projectID string) ([]*models.FieldLock, error) {
	f.gotProjectID = projectID
	return f.locks, f.getErr
}

func (f *fakeLockService) ClearProject(projectID string) (int64, error) {
	f.gotProjectID = projectID
	return f.cleared, f.clearErr
}

// stubPinger fakes the health check against the lock store.
type stubPinger struct {
	models.LockRepository

	pingErr error
}

func (s *stubPinger) Ping() error { return s.pingErr }

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func newTestServer(locks models.LockService, db models.LockRepository) *HTTPServer {
	gin.SetMode(gin.TestMode)
	return NewHTTPServer(locks, db, 0, testLogger()).(*HTTPServer)
}

func doRequest(s *HTTPServer, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func actorHeaders() map[string]string {
	return map[string]string{
		"X-Actor-ID":    "user-alice",
		"X-Actor-Name":  "Alice",
		"X-Business-ID": "biz-1",
	}
}

// TestLockFieldGranted tests the happy acquisition path
func TestLockFieldGranted(t *testing.T) {
	svc := &fakeLockService{grant: &models.LockGrant{FieldName: "budget", ExpiresAt: 1700000300}}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", `{"field_name":"budget"}`, actorHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Locked)
	assert.Equal(t, "budget", resp.FieldName)
	assert.Equal(t, int64(1700000300), resp.ExpiresAt)

	assert.Equal(t, "biz-1", svc.gotBusinessID)
	assert.Equal(t, "proj-1", svc.gotProjectID)
	assert.Equal(t, "budget", svc.gotFieldName)
	assert.Equal(t, models.Actor{ID: "user-alice", DisplayName: "Alice"}, svc.gotActor)
}

// TestLockFieldConflict tests the 409 answer naming the current holder
func TestLockFieldConflict(t *testing.T) {
	svc := &fakeLockService{lockErr: &models.ConflictError{
		FieldName:    "budget",
		LockedBy:     "user-bob",
		LockedByName: "Bob",
	}}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", `{"field_name":"budget"}`, actorHeaders())
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["locked"])
	assert.Equal(t, "budget", resp["field_name"])
	assert.Equal(t, "user-bob", resp["locked_by"])
	assert.Equal(t, "Bob", resp["locked_by_name"])
	assert.NotContains(t, resp, "expires_at")
}

// TestLockFieldContention tests the bounded-retry giveup answer
func TestLockFieldContention(t *testing.T) {
	svc := &fakeLockService{lockErr: models.ErrLockContention}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", `{"field_name":"budget"}`, actorHeaders())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestLockFieldStoreError tests the opaque 500 envelope on storage failures
func TestLockFieldStoreError(t *testing.T) {
	svc := &fakeLockService{lockErr: errors.New("connection reset")}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", `{"field_name":"budget"}`, actorHeaders())
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Failed to acquire field lock", resp["error"])
}

// TestLockFieldRejectsMissingFieldName tests body validation short-circuits
// before the coordinator
func TestLockFieldRejectsMissingFieldName(t *testing.T) {
	svc := &fakeLockService{}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", `{}`, actorHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.lockCalls)
}

// TestLockFieldRejectsOversizedFieldName tests the field name length cap
func TestLockFieldRejectsOversizedFieldName(t *testing.T) {
	svc := &fakeLockService{}
	server := newTestServer(svc, &stubPinger{})

	body := `{"field_name":"` + strings.Repeat("a", 129) + `"}`
	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", body, actorHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.lockCalls)
}

// TestLockFieldTrimsFieldName tests whitespace normalization before acquisition
func TestLockFieldTrimsFieldName(t *testing.T) {
	svc := &fakeLockService{grant: &models.LockGrant{FieldName: "budget", ExpiresAt: 1700000300}}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", `{"field_name":"  budget  "}`, actorHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "budget", svc.gotFieldName)
}

// TestLockRequiresActorIdentity tests that lock routes reject anonymous calls
func TestLockRequiresActorIdentity(t *testing.T) {
	svc := &fakeLockService{}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", `{"field_name":"budget"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, svc.lockCalls)
}

// TestActorNameFallsBackToEmail tests the display name fallback chain
func TestActorNameFallsBackToEmail(t *testing.T) {
	svc := &fakeLockService{grant: &models.LockGrant{FieldName: "budget", ExpiresAt: 1700000300}}
	server := newTestServer(svc, &stubPinger{})

	headers := map[string]string{
		"X-Actor-ID":    "user-alice",
		"X-Actor-Email": "alice@strataplan.io",
	}
	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks", `{"field_name":"budget"}`, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@strataplan.io", svc.gotActor.DisplayName)
}

// TestHeartbeatHandler tests the batch renewal route
func TestHeartbeatHandler(t *testing.T) {
	svc := &fakeLockService{refreshed: 3}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks/heartbeat", "", actorHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HeartbeatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Refreshed)
	assert.Equal(t, int64(3), resp.Count)
	assert.Equal(t, "proj-1", svc.gotProjectID)
}

// TestUnlockWithFields tests a release narrowed to named fields, with
// whitespace and empties dropped
func TestUnlockWithFields(t *testing.T) {
	svc := &fakeLockService{removed: 2}
	server := newTestServer(svc, &stubPinger{})

	body := `{"fields":["budget"," timeline ",""]}`
	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks/release", body, actorHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UnlockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Unlocked)
	assert.Equal(t, int64(2), resp.Count)
	assert.Equal(t, []string{"budget", "timeline"}, svc.gotFields)
}

// TestUnlockWithoutBody tests that an empty release drops the whole working set
func TestUnlockWithoutBody(t *testing.T) {
	svc := &fakeLockService{removed: 2}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks/release", "", actorHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.gotFields)
}

// TestUnlockWhitespaceOnlyFieldsRemovesNothing tests that a fields list
// naming nothing lockable releases zero locks rather than the whole set
func TestUnlockWhitespaceOnlyFieldsRemovesNothing(t *testing.T) {
	svc := &fakeLockService{removed: 2}
	server := newTestServer(svc, &stubPinger{})

	body := `{"fields":["   ",""]}`
	rec := doRequest(server, http.MethodPost, "/api/v1/projects/proj-1/locks/release", body, actorHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UnlockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Unlocked)
	assert.Equal(t, int64(0), resp.Count)
	assert.Equal(t, 0, svc.unlockCalls)
}

// TestUnlockChunkedBodyHonorsFieldFilter tests that a request without a
// Content-Length header still gets its fields list parsed
func TestUnlockChunkedBodyHonorsFieldFilter(t *testing.T) {
	svc := &fakeLockService{removed: 1}
	server := newTestServer(svc, &stubPinger{})

	// Wrapping the reader hides its length, as with chunked transfer encoding.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-1/locks/release",
		io.NopCloser(strings.NewReader(`{"fields":["budget"]}`)))
	require.Equal(t, int64(-1), req.ContentLength)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range actorHeaders() {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"budget"}, svc.gotFields)
}

// TestGetLocksListsActiveHolders tests the introspection projection: holder
// annotations only, no storage internals
func TestGetLocksListsActiveHolders(t *testing.T) {
	svc := &fakeLockService{locks: []*models.FieldLock{
		{
			BusinessID:   "biz-1",
			ProjectID:    "proj-1",
			FieldName:    "budget",
			LockedBy:     "user-bob",
			LockedByName: "Bob",
			LockedAt:     1700000000,
			ExpiresAt:    1700000300,
			Status:       models.LockStatusActive,
		},
	}}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodGet, "/api/v1/projects/proj-1/locks", "", actorHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LocksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Locks, 1)
	assert.Equal(t, LockView{
		FieldName:    "budget",
		LockedBy:     "user-bob",
		LockedByName: "Bob",
		LockedAt:     1700000000,
		ExpiresAt:    1700000300,
	}, resp.Locks[0])

	assert.NotContains(t, rec.Body.String(), "business_id")
	assert.NotContains(t, rec.Body.String(), "status")
}

// TestGetLocksRequiresActor tests that even reads need an identity
func TestGetLocksRequiresActor(t *testing.T) {
	server := newTestServer(&fakeLockService{}, &stubPinger{})

	rec := doRequest(server, http.MethodGet, "/api/v1/projects/proj-1/locks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestClearProjectLocks tests the internal workflow route, which carries no
// actor identity
func TestClearProjectLocks(t *testing.T) {
	svc := &fakeLockService{cleared: 4}
	server := newTestServer(svc, &stubPinger{})

	rec := doRequest(server, http.MethodPost, "/internal/v1/projects/proj-1/locks/clear", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["cleared"])
	assert.Equal(t, float64(4), resp["count"])
	assert.Equal(t, "proj-1", svc.gotProjectID)
}

// TestHealthz tests both sides of the store reachability check
func TestHealthz(t *testing.T) {
	server := newTestServer(&fakeLockService{}, &stubPinger{})
	rec := doRequest(server, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")

	server = newTestServer(&fakeLockService{}, &stubPinger{pingErr: errors.New("connection refused")})
	rec = doRequest(server, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

// TestRequestIDHeader tests that a caller's request id is kept and a missing
// one is minted
func TestRequestIDHeader(t *testing.T) {
	server := newTestServer(&fakeLockService{}, &stubPinger{})

	rec := doRequest(server, http.MethodGet, "/healthz", "", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = doRequest(server, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

// TestMetricsEndpoint tests the scrape surface is mounted
func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(&fakeLockService{}, &stubPinger{})

	rec := doRequest(server, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "claustra_up")
}
