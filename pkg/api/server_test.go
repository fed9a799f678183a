package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"ephys-cam/pkg/config"
	"ephys-cam/pkg/rig"
	"ephys-cam/pkg/sdk/sim"
	"ephys-cam/pkg/webdav"
)

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T) (*Server, *rig.Rig) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lib := sim.New()
	lib.Add("dev0", 32, 24)
	details := config.NewDetails([]string{"m1"},
		config.CameraConfig{Index: 0, Name: "top", Crop: config.Crop{Height: 24, Width: 32}, Exposure: 0.002, OutputDir: t.TempDir()},
	)
	opts := rig.DefaultOptions()
	opts.StateDir = t.TempDir()
	opts.FPS = 100
	r, err := rig.New(lib, details, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	dav := webdav.New(context.Background(), 0, r.Mounts())
	t.Cleanup(dav.Stop)

	return NewServer(r, dav), r
}

func do(t *testing.T, s *Server, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: %s", method, path, err)
		}
	}

	return w.Code, env
}

func TestCamerasAndExposure(t *testing.T) {
	s, _ := newTestServer(t)

	code, env := do(t, s, http.MethodGet, "/api/cameras", "")
	if code != http.StatusOK || env.Status != "success" {
		t.Fatalf("list cameras: %d %+v", code, env)
	}
	var cams []rig.CameraStatus
	if err := json.Unmarshal(env.Data, &cams); err != nil {
		t.Fatal(err)
	}
	if len(cams) != 1 || cams[0].Name != "top" || cams[0].Width != 32 {
		t.Fatalf("cameras = %+v", cams)
	}

	code, env = do(t, s, http.MethodPut, "/api/cameras/0/exposure", `{"exposure": 3}`)
	if code != http.StatusOK {
		t.Fatalf("set exposure: %d %+v", code, env)
	}
	var exp struct {
		Exposure float64 `json:"exposure"`
	}
	if err := json.Unmarshal(env.Data, &exp); err != nil {
		t.Fatal(err)
	}
	if exp.Exposure != 1 {
		t.Errorf("exposure = %v, want 1", exp.Exposure)
	}

	tests := []struct {
		path string
		body string
		code int
	}{
		{"/api/cameras/7/exposure", `{"exposure": 0.1}`, http.StatusNotFound},
		{"/api/cameras/x/exposure", `{"exposure": 0.1}`, http.StatusBadRequest},
		{"/api/cameras/0/exposure", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if code, _ = do(t, s, http.MethodPut, tt.path, tt.body); code != tt.code {
			t.Errorf("PUT %s %s = %d, want %d", tt.path, tt.body, code, tt.code)
		}
	}
}

func TestRecordingLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	if code, _ := do(t, s, http.MethodPost, "/api/recording", `{}`); code != http.StatusBadRequest {
		t.Errorf("start without subject = %d", code)
	}
	if code, _ := do(t, s, http.MethodDelete, "/api/recording", ""); code != http.StatusConflict {
		t.Errorf("stop while idle = %d", code)
	}
	code, env := do(t, s, http.MethodPost, "/api/recording", `{"subject":"m1"}`)
	if code != http.StatusOK {
		t.Fatalf("start: %d %+v", code, env)
	}
	if code, _ = do(t, s, http.MethodPost, "/api/recording", `{"subject":"m1"}`); code != http.StatusConflict {
		t.Errorf("second start = %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cameras/0/snapshot", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("snapshot: %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	time.Sleep(100 * time.Millisecond)
	code, env = do(t, s, http.MethodDelete, "/api/recording", "")
	if code != http.StatusOK {
		t.Fatalf("stop: %d %+v", code, env)
	}
	var sum rig.Summary
	if err := json.Unmarshal(env.Data, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Subject != "m1" || len(sum.Cameras) != 1 || sum.Cameras[0].Frames == 0 {
		t.Fatalf("summary = %+v", sum)
	}

	code, env = do(t, s, http.MethodGet, "/api/recordings", "")
	if code != http.StatusOK || !bytes.Contains(env.Data, []byte(".avi")) {
		t.Errorf("recordings: %d %s", code, env.Data)
	}
}

func TestWebdavControl(t *testing.T) {
	s, _ := newTestServer(t)
	if code, _ := do(t, s, http.MethodPut, "/api/webdav?op=nope", ""); code != http.StatusBadRequest {
		t.Errorf("unknown op = %d", code)
	}
	if code, _ := do(t, s, http.MethodPut, "/api/webdav?op=start", ""); code != http.StatusOK {
		t.Errorf("start = %d", code)
	}
	if code, _ := do(t, s, http.MethodPut, "/api/webdav?op=shutdown", ""); code != http.StatusOK {
		t.Errorf("shutdown = %d", code)
	}
	if code, _ := do(t, s, http.MethodGet, "/api/nothing", ""); code != http.StatusNotFound {
		t.Errorf("no route = %d", code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	s, r := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/rig/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first rig.Event
	if err = conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "status" || first.Status == nil {
		t.Fatalf("first event = %+v", first)
	}

	if _, err = r.SetExposure(0, 0.01); err != nil {
		t.Fatal(err)
	}
	var e rig.Event
	if err = conn.ReadJSON(&e); err != nil {
		t.Fatal(err)
	}
	if e.Type != rig.EventExposureChanged || e.Camera == nil || *e.Camera != 0 {
		t.Errorf("event = %+v", e)
	}
}
