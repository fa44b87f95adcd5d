package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cliptrail/cliptrail-agent/internal/db"
	"github.com/cliptrail/cliptrail-agent/internal/history"
	"github.com/cliptrail/cliptrail-agent/internal/media"
	"github.com/cliptrail/cliptrail-agent/internal/playback"
	"github.com/cliptrail/cliptrail-agent/internal/presets"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

const testToken = "test-token"

type fakeProber map[string]trailer.ProbeResult

func (f fakeProber) Probe(_ context.Context, path string) (trailer.ProbeResult, error) {
	res, ok := f[path]
	if !ok {
		return trailer.ProbeResult{}, errors.New("no such file")
	}
	return res, nil
}

// fakeEncoder writes a small placeholder file to every target.
type fakeEncoder struct {
	mu    sync.Mutex
	plans []trailer.Plan
}

func (f *fakeEncoder) Encode(_ context.Context, plan trailer.Plan) error {
	f.mu.Lock()
	f.plans = append(f.plans, plan)
	f.mu.Unlock()
	for _, target := range plan.Target {
		if err := os.WriteFile(target, []byte("webm-bytes"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, path string) (string, error) {
	return "https://share.example/" + filepath.Base(path), nil
}

type fakeChecker struct {
	caps *media.Capabilities
}

func (f *fakeChecker) Check(context.Context) (*media.Capabilities, error) {
	if f.caps == nil {
		return nil, errors.New("no tools")
	}
	return f.caps, nil
}

type testEnv struct {
	cfg     ServerConfig
	dir     string
	encoder *fakeEncoder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	database, err := db.New(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := history.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), "auth_token", testToken); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}

	store, err := presets.Open(filepath.Join(dir, "presets.ini"), nil)
	if err != nil {
		t.Fatalf("presets.Open() error = %v", err)
	}

	enc := &fakeEncoder{}
	svc := trailer.NewService(trailer.ServiceConfig{
		Prober: fakeProber{
			filepath.Join(dir, "a.mp4"): {FormatName: "mov,mp4,m4a,3gp,3g2,mj2", Duration: "100.0"},
			filepath.Join(dir, "b.mp4"): {FormatName: "matroska,webm", Duration: "60.4"},
		},
		Presets:  store,
		Encoder:  enc,
		Uploader: fakeUploader{},
		Renders:  repo,
	})

	return &testEnv{
		dir:     dir,
		encoder: enc,
		cfg: ServerConfig{
			Version:        "test",
			Service:        svc,
			PlaybackServer: playback.NewServer(nil),
			Repository:     repo,
			Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			StartTime:      time.Now().Add(-10 * time.Second),
		},
	}
}

func (e *testEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "127.0.0.1:51234"
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	NewRouter(e.cfg).ServeHTTP(rr, req)
	return rr
}

// ready registers a.mp4 and sets options valid for it.
func (e *testEnv) ready(t *testing.T) {
	t.Helper()
	if rr := e.do(t, http.MethodPost, "/sources", SourcesRequest{Paths: []string{e.path("a.mp4")}}); rr.Code != http.StatusOK {
		t.Fatalf("POST /sources status = %d", rr.Code)
	}
	rr := e.do(t, http.MethodPut, "/options", OptionsRequest{StartTime: "00:00:10", Duration: "5", NumClips: "3"})
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT /options status = %d", rr.Code)
	}
}

func waitForMessage(t *testing.T, ch <-chan trailer.Message, want trailer.Message) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-ch:
			if m == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body: %v (%s)", err, rr.Body.String())
	}
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	NewRouter(env.cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp HealthResponse
	decodeInto(t, rr, &resp)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if resp.UptimeS < 10 {
		t.Errorf("uptime_s = %d, want >= 10", resp.UptimeS)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"wrong token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sources", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			if code := decodeJSONBody(t, rr)["code"]; code != "UNAUTHORIZED" {
				t.Errorf("code = %v, want UNAUTHORIZED", code)
			}
		})
	}
}

func TestSources_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/sources", SourcesRequest{Paths: []string{env.path("a.mp4"), env.path("notes.txt")}})
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /sources status = %d", rr.Code)
	}
	var change ChangeResponse
	decodeInto(t, rr, &change)
	if len(change.Added) != 1 || change.Added[0] != 0 {
		t.Errorf("added = %v, want [0]", change.Added)
	}
	if len(change.Dropped) != 1 || change.Dropped[0] != env.path("notes.txt") {
		t.Errorf("dropped = %v, want notes.txt", change.Dropped)
	}

	rr = env.do(t, http.MethodPost, "/sources", SourcesRequest{Paths: []string{env.path("b.mp4"), env.path("a.mp4")}})
	decodeInto(t, rr, &change)
	if len(change.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(change.Sources))
	}
	if got := change.Sources[1]; got.LengthSeconds != 60 || got.Length != "00:01:00" {
		t.Errorf("b.mp4 length = %d %q, want 60 00:01:00", got.LengthSeconds, got.Length)
	}
	if got := change.Sources[0].TargetPath; got != env.path("a.webm") {
		t.Errorf("target = %q, want a.webm", got)
	}

	rr = env.do(t, http.MethodDelete, "/sources/item?path="+env.path("a.mp4"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("DELETE /sources/item status = %d", rr.Code)
	}
	var removed RemoveResponse
	decodeInto(t, rr, &removed)
	if removed.Index != 0 {
		t.Errorf("removed index = %d, want 0", removed.Index)
	}

	rr = env.do(t, http.MethodDelete, "/sources/item?path="+env.path("a.mp4"), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = env.do(t, http.MethodDelete, "/sources/item", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("remove without path status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = env.do(t, http.MethodPut, "/sources", SourcesRequest{Paths: []string{env.path("a.mp4")}})
	decodeInto(t, rr, &change)
	if len(change.Sources) != 1 || change.Sources[0].SourcePath != env.path("a.mp4") {
		t.Errorf("replace sources = %+v", change.Sources)
	}

	rr = env.do(t, http.MethodDelete, "/sources", nil)
	var cleared ClearResponse
	decodeInto(t, rr, &cleared)
	if cleared.Removed != 1 {
		t.Errorf("cleared = %d, want 1", cleared.Removed)
	}
}

func TestSources_BadBody(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/sources", SourcesRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestOptions_Results(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/sources", SourcesRequest{Paths: []string{env.path("a.mp4")}})

	tests := []struct {
		name      string
		opts      OptionsRequest
		wantValid bool
		wantMsg   string
	}{
		{"valid", OptionsRequest{StartTime: "00:00:10", Duration: "5", NumClips: "3"}, true, ""},
		{"bad duration", OptionsRequest{StartTime: "00:00:10", Duration: "five", NumClips: "3"}, false, trailer.MsgInvalidDuration},
		{"bad start", OptionsRequest{StartTime: "10", Duration: "5", NumClips: "3"}, false, trailer.MsgInvalidStartTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPut, "/options", tt.opts)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			var resp ResultsResponse
			decodeInto(t, rr, &resp)
			if resp.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v (%+v)", resp.Valid, tt.wantValid, resp.Results)
			}
			if tt.wantMsg != "" && (len(resp.Results) == 0 || resp.Results[0].Message != tt.wantMsg) {
				t.Errorf("results = %+v, want message %q", resp.Results, tt.wantMsg)
			}
		})
	}

	rr := env.do(t, http.MethodPost, "/preview", nil)
	var resp ResultsResponse
	decodeInto(t, rr, &resp)
	if resp.Options.StartTime != "10" || resp.Valid {
		t.Errorf("preview = %+v, want last options and invalid", resp)
	}
}

func TestPlan(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/plan", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty plan status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	if code := decodeJSONBody(t, rr)["code"]; code != "INVALID_CONFIGURATION" {
		t.Errorf("code = %v, want INVALID_CONFIGURATION", code)
	}

	env.ready(t)

	rr = env.do(t, http.MethodGet, "/plan?format=json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("json plan status = %d", rr.Code)
	}
	var plan trailer.Plan
	decodeInto(t, rr, &plan)
	if len(plan.Source) != 1 || plan.NumClips != 3 || plan.StartTime != 10 || plan.EndTime != nil {
		t.Errorf("plan = %+v", plan)
	}

	rr = env.do(t, http.MethodGet, "/plan?format=yaml", nil)
	if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("yaml Content-Type = %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "num_clips: 3") {
		t.Errorf("yaml body = %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/plan?format=edl", nil)
	if !strings.HasPrefix(rr.Body.String(), "TITLE: cliptrail") {
		t.Errorf("edl body = %q", rr.Body.String())
	}
	if n := strings.Count(rr.Body.String(), "* MEDIA PATH:"); n != 3 {
		t.Errorf("edl events = %d, want 3", n)
	}

	rr = env.do(t, http.MethodGet, "/plan?format=xml", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("xml plan status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestPresets(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/presets", PresetRequest{Name: "quick"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("save without sources status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}

	env.ready(t)

	rr = env.do(t, http.MethodPost, "/presets", PresetRequest{Name: "quick"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("save status = %d, want %d", rr.Code, http.StatusCreated)
	}
	var list PresetsResponse
	decodeInto(t, rr, &list)
	if len(list.Presets) != 1 || list.Presets[0].Name != "quick" {
		t.Errorf("presets = %+v", list.Presets)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		preset   string
		wantCode int
	}{
		{"duplicate", http.MethodPost, "/presets", "quick", http.StatusConflict},
		{"reserved", http.MethodPost, "/presets", "DEFAULT", http.StatusBadRequest},
		{"brackets", http.MethodPost, "/presets", "a[b]", http.StatusBadRequest},
		{"load missing", http.MethodPost, "/presets/load", "slow", http.StatusNotFound},
		{"load none", http.MethodPost, "/presets/load", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, PresetRequest{Name: tt.preset})
			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", rr.Code, tt.wantCode, rr.Body.String())
			}
		})
	}

	env.do(t, http.MethodPut, "/options", OptionsRequest{StartTime: "00:00:00", Duration: "1", NumClips: "1"})
	rr = env.do(t, http.MethodPost, "/presets/load", PresetRequest{Name: "quick"})
	if rr.Code != http.StatusOK {
		t.Fatalf("load status = %d", rr.Code)
	}
	var resp ResultsResponse
	decodeInto(t, rr, &resp)
	want := trailer.Options{StartTime: "00:00:10", Duration: "5", NumClips: "3"}
	if resp.Options != want || !resp.Valid {
		t.Errorf("load = %+v, want %+v valid", resp.Options, want)
	}

	rr = env.do(t, http.MethodGet, "/presets", nil)
	decodeInto(t, rr, &list)
	if len(list.Presets) != 1 {
		t.Errorf("presets = %+v, want one", list.Presets)
	}
}

func TestCreateUploadAndPlayback(t *testing.T) {
	env := newTestEnv(t)
	feed, cancel := env.cfg.Service.Feed().Subscribe()
	defer cancel()

	rr := env.do(t, http.MethodPost, "/trailer/upload", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("upload before create status = %d, want %d", rr.Code, http.StatusConflict)
	}
	var msg MessageOnlyResponse
	decodeInto(t, rr, &msg)
	if msg.Message.Line != "ERROR: "+trailer.MsgNotCreated {
		t.Errorf("message = %q", msg.Message.Line)
	}

	rr = env.do(t, http.MethodPost, "/trailer", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("create without sources status = %d, want %d", rr.Code, http.StatusConflict)
	}

	env.ready(t)

	rr = env.do(t, http.MethodPost, "/trailer", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	decodeInto(t, rr, &msg)
	if msg.Message.Line != "INFO: "+trailer.MsgRunning {
		t.Errorf("message = %q", msg.Message.Line)
	}
	waitForMessage(t, feed, trailer.Info(trailer.StatusDone))

	rr = env.do(t, http.MethodGet, "/status", nil)
	var status StatusResponse
	decodeInto(t, rr, &status)
	if status.State != "created" || !status.Created || status.SourcesCount != 1 {
		t.Errorf("status = %+v", status)
	}
	if n := len(status.Messages); n == 0 || status.Messages[n-1].Line != "INFO: Done" {
		t.Errorf("messages = %+v, want last INFO: Done", status.Messages)
	}

	rr = env.do(t, http.MethodGet, "/trailer/file?index=0", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("trailer file status = %d", rr.Code)
	}
	if rr.Body.String() != "webm-bytes" {
		t.Errorf("trailer body = %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/trailer/file?index=3", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("out of range status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = env.do(t, http.MethodPost, "/trailer/upload", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	waitForMessage(t, feed, trailer.Info("Uploaded to https://share.example/a.webm"))

	rr = env.do(t, http.MethodGet, "/renders", nil)
	var renders RendersResponse
	decodeInto(t, rr, &renders)
	if len(renders.Renders) != 1 {
		t.Fatalf("renders = %d, want 1", len(renders.Renders))
	}
	got := renders.Renders[0]
	if got.Status != history.StatusCompleted || len(got.Targets) != 1 {
		t.Errorf("render = %+v", got)
	}
	if len(got.Uploads) != 1 || got.Uploads[0].Link != "https://share.example/a.webm" {
		t.Errorf("uploads = %+v", got.Uploads)
	}
}

func TestRenders_BadLimit(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/renders?limit=-1", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestStatus_Tools(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tool := media.ToolInfo{Available: true, Path: "/usr/bin/ffmpeg", Version: "ffmpeg version 6.1"}

	tests := []struct {
		name      string
		caps      *media.Capabilities
		refresh   bool
		wantTools bool
		wantProbe bool
	}{
		{"nil doctor", nil, false, false, false},
		{"empty cache", &media.Capabilities{FFmpeg: tool, FFprobe: tool, ProbedAt: time.Now()}, false, false, false},
		{"cached", &media.Capabilities{FFmpeg: tool, FFprobe: tool, ProbedAt: time.Now()}, true, true, true},
		{"zero probed at", &media.Capabilities{FFmpeg: tool, FFprobe: tool}, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.caps != nil {
				env.cfg.Doctor = media.NewCachedDoctor(&fakeChecker{caps: tt.caps}, logger)
				if tt.refresh {
					if _, err := env.cfg.Doctor.Refresh(context.Background()); err != nil {
						t.Fatalf("Refresh() error = %v", err)
					}
				}
			}

			rr := httptest.NewRecorder()
			statusHandler(env.cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

			body := decodeJSONBody(t, rr)
			if body["state"] != "idle" {
				t.Errorf("state = %v, want idle", body["state"])
			}
			tools, ok := body["tools"].(map[string]interface{})
			if ok != tt.wantTools {
				t.Fatalf("tools present = %v, want %v", ok, tt.wantTools)
			}
			if !ok {
				return
			}
			if ready, _ := tools["ready"].(bool); !ready {
				t.Errorf("tools.ready = %v, want true", tools["ready"])
			}
			if _, ok := tools["last_probe_at"]; ok != tt.wantProbe {
				t.Errorf("last_probe_at present = %v, want %v", ok, tt.wantProbe)
			}
		})
	}
}
