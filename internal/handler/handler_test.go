package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/netboxlabs/diode/internal/changeset"
	"github.com/netboxlabs/diode/internal/domain"
	"github.com/netboxlabs/diode/internal/repository/sqlite"
	"github.com/netboxlabs/diode/internal/service"
)

const (
	testWriteKey = "test-write-key"
	testReadKey  = "test-read-key"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	reg := domain.NewRegistry()
	store, err := sqlite.New(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})

	applier := changeset.NewApplier(reg, store)
	eventBus := service.NewEventBus()
	h := NewDiodeHandler(
		service.NewIngestionService(applier, eventBus),
		service.NewObjectStateService(reg, store),
		"test",
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/diode/apply-change-set/", h.ApplyChangeSet)
	mux.HandleFunc("GET /api/diode/object-state/", h.ObjectState)
	mux.HandleFunc("GET /api/diode/status/", h.Status)

	srv := httptest.NewServer(Chain(mux,
		Recover,
		Auth(APIKeys{WriteKey: testWriteKey, ReadKey: testReadKey}),
	))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		resp.Body.Close()
	})

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func applyBody(changes ...map[string]any) string {
	b, _ := json.Marshal(map[string]any{
		"change_set_id": uuid.New().String(),
		"change_set":    changes,
	})
	return string(b)
}

func createChange(objectType string, data map[string]any) map[string]any {
	return map[string]any{
		"change_id":   uuid.New().String(),
		"change_type": "create",
		"object_type": objectType,
		"data":        data,
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/diode/status/", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authentication required", body["error"])

	resp, body = doRequest(t, http.MethodGet, srv.URL+"/api/diode/status/", "wrong-key", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid token", body["error"])
}

func TestReadKeyCannotWrite(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/api/diode/status/", testReadKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/diode/apply-change-set/", testReadKey,
		applyBody(createChange("dcim.site", map[string]any{"name": "Site A"})))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Insufficient permissions", body["error"])
}

func TestBcryptHashedKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, matchKey(string(hash), "secret"))
	assert.False(t, matchKey(string(hash), "wrong"))
	assert.True(t, matchKey("plain", "plain"))
	assert.False(t, matchKey("", ""))
}

func TestApplyChangeSetSuccess(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/diode/apply-change-set/", testWriteKey,
		applyBody(createChange("dcim.site", map[string]any{"name": "Site A"})))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["result"])

	resp, state := doRequest(t, http.MethodGet,
		srv.URL+"/api/diode/object-state/?object_type=dcim.site&q=Site+A", testReadKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dcim.site", state["object_type"])
	object, ok := state["object"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Site A", object["name"])
	assert.NotNil(t, state["object_change_id"])
}

func TestApplyChangeSetFailure(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/diode/apply-change-set/", testWriteKey,
		applyBody(
			createChange("dcim.site", map[string]any{"name": "Site A"}),
			createChange("dcim.rack", map[string]any{"name": "R1"}),
		))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "failed", body["result"])

	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	entry, ok := errs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unsupported object_type dcim.rack", entry["object_type"])

	// The failed batch must not leave the valid site behind
	resp, state := doRequest(t, http.MethodGet,
		srv.URL+"/api/diode/object-state/?object_type=dcim.site&q=Site+A", testWriteKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, state)
}

func TestApplyChangeSetBadJSON(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/diode/apply-change-set/", testWriteKey, "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "failed", body["result"])
}

func TestObjectStateNotFoundIsEmptyObject(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet,
		srv.URL+"/api/diode/object-state/?object_type=dcim.site&id=42", testReadKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestObjectStateBadQuery(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		query   string
		details string
	}{
		{"", "object_type parameter is required"},
		{"?object_type=dcim.site", "id or q parameter is required"},
		{"?object_type=dcim.site&id=abc", "id must be an integer"},
	}

	for _, tt := range tests {
		resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/diode/object-state/"+tt.query, testReadKey, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid query", body["error"], fmt.Sprintf("query %q", tt.query))
		assert.Equal(t, tt.details, body["details"])
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/diode/status/", testWriteKey, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}
