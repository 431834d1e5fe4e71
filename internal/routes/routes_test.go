package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"runaway_tracker/internal/hub"
	"runaway_tracker/internal/middleware"
	"runaway_tracker/internal/models"
	"runaway_tracker/internal/position"
	"runaway_tracker/internal/recorder"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopPersister struct{}

func (nopPersister) Persist(context.Context, models.RecordingSession) (string, error) {
	return "a1", nil
}

type server struct {
	*httptest.Server
	rec    *recorder.Recorder
	source *position.DeviceSource
	auth   *middleware.Auth
	token  string
}

func newServer(t *testing.T) *server {
	t.Helper()
	h, err := hub.NewTelemetryHub(nil)
	if err != nil {
		t.Fatal(err)
	}
	src := position.NewDeviceSource(16)
	cfg := recorder.DefaultConfig()
	cfg.TelemetryInterval = time.Hour
	rec := recorder.New(cfg, src, src, h, nopPersister{})

	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)

	auth := middleware.NewAuth("test-secret", time.Hour)
	tok, _ := auth.GenerateToken(3, "runner", "km")

	ts := httptest.NewServer(SetupRouter(Deps{Auth: auth, Recorder: rec, Source: src, Hub: h}))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		rec.Close()
	})
	return &server{Server: ts, rec: rec, source: src, auth: auth, token: tok}
}

func (s *server) post(t *testing.T, path string) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, s.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func (s *server) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + path + "?token=" + s.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, kind string) hub.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env hub.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if env.Type == kind {
			return env
		}
	}
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	s := newServer(t)

	resp, err := http.Get(s.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health["recording"] != "ready" {
		t.Fatalf("health: %d %v", resp.StatusCode, health)
	}

	resp, err = http.Get(s.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}

	resp, err = http.Get(s.URL + "/recording")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("recording without token: %d", resp.StatusCode)
	}
}

func TestDeviceToLiveViewer(t *testing.T) {
	s := newServer(t)

	device := s.dial(t, "/ws/device")
	if err := device.WriteJSON(map[string]interface{}{
		"type": "permission",
		"data": map[string]bool{"authorized": true},
	}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "permission", s.source.Authorized)

	viewer := s.dial(t, "/ws/live")
	if code := s.post(t, "/recording/start"); code != http.StatusOK {
		t.Fatalf("start: %d", code)
	}
	readUntil(t, viewer, hub.TypeSessionStarted)

	if err := device.WriteJSON(map[string]interface{}{
		"type": "sample",
		"data": map[string]interface{}{
			"latitude":  47.3769,
			"longitude": 8.5417,
			"accuracy":  5,
			"speed":     3,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "route point", func() bool {
		sess := s.rec.Session()
		return sess != nil && len(sess.Route) == 1
	})

	if code := s.post(t, "/recording/stop"); code != http.StatusOK {
		t.Fatalf("stop: %d", code)
	}
	env := readUntil(t, viewer, hub.TypeSummary)
	data, _ := env.Data.(map[string]interface{})
	if data["point_count"] != float64(1) {
		t.Fatalf("summary = %v", data)
	}
}

func TestCoachWatchesButCannotDrive(t *testing.T) {
	s := newServer(t)
	s.source.SetAuthorized(true)
	runner := s.token
	s.token, _ = s.auth.GenerateToken(9, "coach", "km")

	if code := s.post(t, "/recording/start"); code != http.StatusForbidden {
		t.Fatalf("coach start: %d", code)
	}
	if s.rec.State() != models.StateReady {
		t.Fatalf("coach command reached the recorder, state=%s", s.rec.State())
	}

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/device?token=" + s.token
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("coach opened the device socket")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("device socket for coach: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, s.URL+"/recording", nil)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("coach status: %d", resp.StatusCode)
	}

	viewer := s.dial(t, "/ws/live")
	s.token = runner
	if code := s.post(t, "/recording/start"); code != http.StatusOK {
		t.Fatalf("runner start: %d", code)
	}
	readUntil(t, viewer, hub.TypeSessionStarted)
}
