package controllers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"runaway_tracker/internal/middleware"
	"runaway_tracker/internal/models"
	"runaway_tracker/internal/position"
	"runaway_tracker/internal/recorder"
	"runaway_tracker/internal/store"
)

var base = time.Date(2026, 4, 12, 7, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopSink struct{}

func (nopSink) SessionStarted(models.SessionInfo)   {}
func (nopSink) Publish(models.TelemetrySnapshot)    {}
func (nopSink) SessionEnded(models.SummarySnapshot) {}

type fakePersister struct {
	mu      sync.Mutex
	err     error
	userIDs []uint
	saved   []models.RecordingSession
}

func (p *fakePersister) Persist(ctx context.Context, s models.RecordingSession) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	id, _ := store.UserIDFrom(ctx)
	p.userIDs = append(p.userIDs, id)
	p.saved = append(p.saved, s)
	return "activity-1", nil
}

type fixture struct {
	t         *testing.T
	router    *gin.Engine
	rec       *recorder.Recorder
	source    *position.DeviceSource
	persister *fakePersister
	auth      *middleware.Auth
	token     string
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, source: position.NewDeviceSource(16), persister: &fakePersister{}, now: base}

	cfg := recorder.DefaultConfig()
	cfg.TelemetryInterval = time.Hour
	f.rec = recorder.New(cfg, f.source, f.source, nopSink{}, f.persister,
		recorder.WithClock(func() time.Time { return f.now }))
	t.Cleanup(f.rec.Close)

	auth := middleware.NewAuth("test-secret", time.Hour)
	tok, err := auth.GenerateToken(7, "runner", "km")
	if err != nil {
		t.Fatal(err)
	}
	f.token = tok
	f.auth = auth

	rc := NewRecordingController(f.rec)
	f.router = gin.New()
	g := f.router.Group("/recording", auth.RequireAuth())
	g.GET("", rc.Status)
	g.POST("/start", rc.Start)
	g.POST("/pause", rc.Pause)
	g.POST("/resume", rc.Resume)
	g.POST("/stop", rc.Stop)
	g.POST("/discard", rc.Discard)
	g.POST("/save", rc.Save)
	return f
}

func (f *fixture) do(method, path, body string) (int, map[string]interface{}) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		f.t.Fatalf("%s %s: bad body %q", method, path, w.Body.String())
	}
	return w.Code, out
}

func (f *fixture) sample(offset time.Duration, metersNorth float64) {
	f.rec.HandleSample(models.Sample{
		Latitude:  47.3769 + metersNorth/111195.0,
		Longitude: 8.5417,
		Speed:     3,
		Accuracy:  5,
		Timestamp: base.Add(offset),
	})
}

func TestStartRequiresPermission(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(http.MethodPost, "/recording/start", `{"name":"Lunch"}`)
	if code != http.StatusForbidden {
		t.Fatalf("status %d, body %v", code, body)
	}
	if f.rec.State() != models.StateReady {
		t.Fatalf("state = %s", f.rec.State())
	}
}

func TestRecordingLifecycle(t *testing.T) {
	f := newFixture(t)
	f.source.SetAuthorized(true)

	code, body := f.do(http.MethodPost, "/recording/start", `{"name":"Lunch","activity_type":"run"}`)
	if code != http.StatusOK || body["state"] != "recording" {
		t.Fatalf("start: %d %v", code, body)
	}
	if code, _ := f.do(http.MethodPost, "/recording/start", ""); code != http.StatusConflict {
		t.Fatalf("second start: %d", code)
	}

	steps := []struct {
		path  string
		code  int
		state string
	}{
		{"/recording/resume", http.StatusConflict, "recording"},
		{"/recording/pause", http.StatusOK, "paused"},
		{"/recording/pause", http.StatusConflict, "paused"},
		{"/recording/resume", http.StatusOK, "recording"},
		{"/recording/stop", http.StatusOK, "completed"},
		{"/recording/pause", http.StatusConflict, "completed"},
	}
	for _, s := range steps {
		code, body := f.do(http.MethodPost, s.path, "")
		if code != s.code || body["state"] != s.state {
			t.Fatalf("%s: got %d %v, want %d %s", s.path, code, body["state"], s.code, s.state)
		}
	}

	code, body = f.do(http.MethodGet, "/recording", "")
	caps, _ := body["capabilities"].(map[string]interface{})
	if code != http.StatusOK || caps["can_discard"] != true || caps["can_start"] != false {
		t.Fatalf("status: %d %v", code, body)
	}
}

func TestSaveEmptyRouteConflicts(t *testing.T) {
	f := newFixture(t)
	f.source.SetAuthorized(true)
	f.do(http.MethodPost, "/recording/start", "")
	f.do(http.MethodPost, "/recording/stop", "")

	code, body := f.do(http.MethodPost, "/recording/save", "")
	if code != http.StatusConflict || body["state"] != "completed" {
		t.Fatalf("save: %d %v", code, body)
	}
	code, body = f.do(http.MethodPost, "/recording/discard", "")
	if code != http.StatusOK || body["state"] != "ready" {
		t.Fatalf("discard: %d %v", code, body)
	}
}

func TestSaveBeforeStopConflicts(t *testing.T) {
	f := newFixture(t)
	if code, _ := f.do(http.MethodPost, "/recording/save", ""); code != http.StatusConflict {
		t.Fatalf("save without session: %d", code)
	}
	f.source.SetAuthorized(true)
	f.do(http.MethodPost, "/recording/start", "")
	if code, _ := f.do(http.MethodPost, "/recording/save", ""); code != http.StatusConflict {
		t.Fatalf("save while recording: %d", code)
	}
}

func TestSavePersistsForCaller(t *testing.T) {
	f := newFixture(t)
	f.source.SetAuthorized(true)
	f.do(http.MethodPost, "/recording/start", `{"activity_type":"walk"}`)
	f.sample(time.Second, 0)
	f.sample(5*time.Second, 12)
	f.now = base.Add(6 * time.Second)
	f.do(http.MethodPost, "/recording/stop", "")

	code, body := f.do(http.MethodPost, "/recording/save", "")
	if code != http.StatusCreated || body["activity_id"] != "activity-1" || body["state"] != "ready" {
		t.Fatalf("save: %d %v", code, body)
	}
	if len(f.persister.userIDs) != 1 || f.persister.userIDs[0] != 7 {
		t.Fatalf("persisted for %v", f.persister.userIDs)
	}
	saved := f.persister.saved[0]
	if saved.ActivityType != models.ActivityWalk || len(saved.Route) != 2 {
		t.Fatalf("saved %+v", saved)
	}
}

func TestSaveFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.persister.err = errors.New("db down")
	f.source.SetAuthorized(true)
	f.do(http.MethodPost, "/recording/start", "")
	f.sample(time.Second, 0)
	f.do(http.MethodPost, "/recording/stop", "")

	code, body := f.do(http.MethodPost, "/recording/save", "")
	if code != http.StatusBadGateway || body["state"] != "completed" {
		t.Fatalf("save: %d %v", code, body)
	}
	if !f.rec.CanPersist() {
		t.Fatal("session should remain saveable")
	}
}

func TestStartRejectsUnknownActivityType(t *testing.T) {
	f := newFixture(t)
	f.source.SetAuthorized(true)
	if code, _ := f.do(http.MethodPost, "/recording/start", `{"activity_type":"swim"}`); code != http.StatusBadRequest {
		t.Fatalf("status %d", code)
	}
}

func TestLocationDataTimestamps(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{`{"latitude":1,"timestamp":"2026-04-12T07:30:00Z"}`, base, true},
		{`{"latitude":1,"timestamp":"2026-04-12T07:30:00.000"}`, base, true},
		{`{"latitude":1,"timestamp":"2026-04-12T09:30:00+02:00"}`, base, true},
		{`{"latitude":1,"timestamp":"yesterday"}`, time.Time{}, false},
		{`{"latitude":1}`, time.Time{}, false},
	}
	for _, tc := range cases {
		var ld LocationData
		err := json.Unmarshal([]byte(tc.raw), &ld)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err = %v", tc.raw, err)
		}
		if tc.ok && !ld.Timestamp.Equal(tc.want) {
			t.Fatalf("%s: got %v", tc.raw, ld.Timestamp)
		}
		if tc.ok && ld.Latitude != 1 {
			t.Fatalf("%s: latitude lost", tc.raw)
		}
	}
}

func TestDeviceMessages(t *testing.T) {
	src := position.NewDeviceSource(4)
	wc := NewWebSocketController(src, nil)

	if err := wc.handleDeviceMessage([]byte(`{"type":"permission","data":{"authorized":true}}`)); err != nil {
		t.Fatal(err)
	}
	if !src.Authorized() {
		t.Fatal("permission not applied")
	}
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}
	msg := `{"type":"sample","data":{"latitude":47.1,"longitude":8.5,"accuracy":4,"speed":2.5,"timestamp":"2026-04-12T07:30:00Z"}}`
	if err := wc.handleDeviceMessage([]byte(msg)); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-src.Samples():
		if s.Latitude != 47.1 || s.Speed != 2.5 || !s.Timestamp.Equal(base) {
			t.Fatalf("sample = %+v", s)
		}
	default:
		t.Fatal("sample not forwarded")
	}

	if err := wc.handleDeviceMessage([]byte(`{"type":"heartbeat"}`)); err == nil {
		t.Fatal("unknown type should fail")
	}
	if err := wc.handleDeviceMessage([]byte(`not json`)); err == nil {
		t.Fatal("garbage should fail")
	}
}

type fakeActivities struct {
	activity models.Activity
	points   []models.ActivityPoint
}

func (f *fakeActivities) Get(_ context.Context, userID uint, id string) (*models.Activity, error) {
	if id != f.activity.ID || userID != f.activity.UserID {
		return nil, store.ErrActivityNotFound
	}
	a := f.activity
	return &a, nil
}

func (f *fakeActivities) List(_ context.Context, userID uint, _, _ int) ([]models.Activity, error) {
	if userID != f.activity.UserID {
		return nil, nil
	}
	return []models.Activity{f.activity}, nil
}

func (f *fakeActivities) Points(_ context.Context, _ string) ([]models.ActivityPoint, error) {
	return f.points, nil
}

func activityRouter(t *testing.T) (r *gin.Engine, token, id string) {
	t.Helper()
	end := base.Add(10 * time.Minute)
	route := []models.RoutePoint{
		{Latitude: 47.3769, Longitude: 8.5417, Speed: 3, Timestamp: base},
		{Latitude: 47.3779, Longitude: 8.5417, Speed: 3, Timestamp: base.Add(time.Minute)},
	}
	activity, err := store.BuildActivity(7, models.RecordingSession{
		ID: "s1", Name: "Morning Run", ActivityType: models.ActivityRun,
		StartTime: base, EndTime: &end, Distance: 111, Route: route,
	})
	if err != nil {
		t.Fatal(err)
	}
	fake := &fakeActivities{activity: activity, points: activity.Points}
	fake.activity.Points = nil

	auth := middleware.NewAuth("test-secret", time.Hour)
	token, _ = auth.GenerateToken(7, "runner", "km")
	ac := NewActivityController(fake)
	r = gin.New()
	g := r.Group("/activities", auth.RequireAuth())
	g.GET("", ac.List)
	g.GET("/:id", ac.Get)
	g.GET("/:id/export.fit", ac.ExportFIT)
	return r, token, activity.ID
}

func TestActivityEndpoints(t *testing.T) {
	r, tok, id := activityRouter(t)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := get("/activities/missing"); w.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", w.Code)
	}

	w := get("/activities/" + id + "?points=true")
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	var got struct {
		ID       string `json:"id"`
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Points []models.ActivityPoint `json:"points"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != id || got.Geometry.Type != "LineString" || len(got.Geometry.Coordinates) != 2 || len(got.Points) != 2 {
		t.Fatalf("activity = %s", w.Body.String())
	}

	w = get("/activities")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(id)) {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}

	w = get("/activities/" + id + "/export.fit")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/vnd.ant.fit" {
		t.Fatalf("export: %d %v", w.Code, w.Header())
	}
	body := w.Body.Bytes()
	if len(body) < 14 || string(body[8:12]) != ".FIT" {
		t.Fatal("missing FIT signature")
	}
	if size := binary.LittleEndian.Uint32(body[4:8]); int(size) > len(body) {
		t.Fatalf("data size %d exceeds body %d", size, len(body))
	}
}

func TestStatusUsesCallersDistanceUnit(t *testing.T) {
	f := newFixture(t)
	f.source.SetAuthorized(true)
	f.do(http.MethodPost, "/recording/start", "")
	f.sample(0, 0)
	f.sample(10*time.Minute, 1609.344)

	_, body := f.do(http.MethodGet, "/recording", "")
	km, _ := body["metrics"].(map[string]interface{})
	if km["unit"] != "km" {
		t.Fatalf("unit = %v, want km", km["unit"])
	}

	f.token, _ = f.auth.GenerateToken(7, "runner", "mi")
	_, body = f.do(http.MethodGet, "/recording", "")
	mi, _ := body["metrics"].(map[string]interface{})
	if mi["unit"] != "mi" {
		t.Fatalf("unit = %v, want mi", mi["unit"])
	}
	d, _ := mi["display_distance"].(float64)
	if d < 0.99 || d > 1.01 {
		t.Fatalf("display distance = %v mi, want about 1", d)
	}
	if mi["distance"] != km["distance"] {
		t.Fatalf("meters changed with the unit: %v vs %v", mi["distance"], km["distance"])
	}
}
