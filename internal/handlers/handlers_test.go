package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/qverse/iotbridge/internal/auth"
	"github.com/qverse/iotbridge/internal/bridge"
	"github.com/qverse/iotbridge/internal/equipment"
	"github.com/qverse/iotbridge/internal/iotdata"
	"github.com/qverse/iotbridge/internal/models"
	"github.com/qverse/iotbridge/internal/scene"
)

type testEnv struct {
	router *mux.Router
	store  *scene.Store
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := scene.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	manager := iotdata.NewManager(
		iotdata.NewAdapter(iotdata.AdapterOptions{}),
		iotdata.NewCache(iotdata.DefaultCacheConfig()),
	)

	eq := equipment.NewService(equipment.NewSyntheticProvider(1), func() []string {
		return nil
	}, time.Minute)
	t.Cleanup(func() { eq.Shutdown(context.Background()) })

	channel := bridge.NewChannel(bridge.Config{RequestTimeout: 50 * time.Millisecond})
	server := bridge.NewServer(channel, "")

	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	jwt := auth.NewJWTManager([]byte("test-secret"), "admin", hash)

	h := New(store, manager, eq, channel, jwt)
	router := mux.NewRouter()
	h.RegisterRoutes(router, server)

	token, err := jwt.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return &testEnv{router: router, store: store, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return resp
}

func sampleDocument() models.SceneDocument {
	return models.SceneDocument{
		Scene: models.Scene{ID: "s1", Name: "车间一层", ModelID: "m1"},
		Tags: []models.RawTag{
			{ID: "t1", UUID: "u1", SceneID: "s1", Keyword: "iot_CV-05126"},
			{ID: "t2", UUID: "u2", SceneID: "s1", Keyword: "camera_IPC-77_1"},
		},
		Put2ds: []models.RawPut2d{
			{ID: "p1", SceneID: "s1", Title: "iot_PV-00021_1", Width: 1500, Height: 800},
		},
	}
}

func TestLoginAndProtectedRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin", "password": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}
	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Fatalf("login failed: %s", resp.Error)
	}

	w = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials status = %d, want 401", w.Code)
	}

	// 无令牌访问受保护路由
	req := httptest.NewRequest(http.MethodGet, "/api/scenes", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}
}

func TestSceneImportAndLoad(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/scenes/import", sampleDocument())
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/scenes", nil)
	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Fatalf("list scenes failed: %s", resp.Error)
	}

	w = env.do(t, http.MethodPost, "/api/scenes/s1/load", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("load status = %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/devices/idmap", nil)
	resp = decodeResponse(t, w)
	idMap, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("idmap data type = %T", resp.Data)
	}
	if _, ok := idMap["CV-05126"]; !ok {
		t.Errorf("idmap missing CV-05126: %v", idMap)
	}
	if _, ok := idMap["IPC-77"]; !ok {
		t.Errorf("idmap missing IPC-77: %v", idMap)
	}
}

func TestSceneNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/scenes/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing scene status = %d, want 404", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/scenes/missing/load", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("load missing scene status = %d, want 404", w.Code)
	}
}

func TestCacheConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/cache/config", iotdata.CacheConfig{
		MaxSize: 10,
		TTL:     time.Minute,
		Enabled: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put cache config status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/cache/config", nil)
	resp := decodeResponse(t, w)
	data, _ := json.Marshal(resp.Data)
	var cfg iotdata.CacheConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("decode cache config: %v", err)
	}
	if cfg.MaxSize != 10 || !cfg.Enabled {
		t.Errorf("cache config = %+v", cfg)
	}

	w = env.do(t, http.MethodPost, "/api/cache/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear cache status = %d", w.Code)
	}
}

func TestPollingStartStop(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/equipment/poll/start", nil)
	resp := decodeResponse(t, w)
	state, _ := resp.Data.(map[string]interface{})
	if running, _ := state["running"].(bool); !running {
		t.Fatalf("poller not running after start: %v", resp.Data)
	}

	w = env.do(t, http.MethodPost, "/api/equipment/poll/stop", nil)
	resp = decodeResponse(t, w)
	state, _ = resp.Data.(map[string]interface{})
	if running, _ := state["running"].(bool); running {
		t.Fatalf("poller still running after stop: %v", resp.Data)
	}
}

func TestDeviceTelemetryNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/equipment/CV-00000/telemetry", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("telemetry status = %d, want 404", w.Code)
	}
}

func TestBridgeActionValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/bridge/tag/flyto", bridge.FlyToParams{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty flyto status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/bridge/mode/switch",
		map[string]int{"mode": 5})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d, want 400", w.Code)
	}
}

func TestBridgeRequestTimesOutWithoutPeer(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/bridge/tags", nil)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("bridge tags status = %d, want 504", w.Code)
	}
}
