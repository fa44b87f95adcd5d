package cloud

import (
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
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeHost emulates the upload host. The first statusErrors polls answer 503,
// the next encodingPolls answer "encoding", and the rest answer finalTask.
type fakeHost struct {
	t             *testing.T
	statusErrors  int32
	encodingPolls int32
	finalTask     string
	tokenStatus   int

	polls    atomic.Int32
	uploaded atomic.Value
	auth     atomic.Value
}

func (h *fakeHost) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if h.tokenStatus != 0 {
			w.WriteHeader(h.tokenStatus)
			w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		var req tokenRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.GrantType != "password" || req.Username != "alice" {
			h.t.Errorf("token request = %+v", req)
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-123"})
	})
	mux.HandleFunc("POST /v1/gfycats", func(w http.ResponseWriter, r *http.Request) {
		h.auth.Store(r.Header.Get("Authorization"))
		var req createRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Title != "trailer" {
			h.t.Errorf("title = %q, want trailer", req.Title)
		}
		json.NewEncoder(w).Encode(createResponse{Name: "brightquietfox"})
	})
	mux.HandleFunc("PUT /drop/brightquietfox", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		h.uploaded.Store(string(body))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/gfycats/fetch/status/brightquietfox", func(w http.ResponseWriter, r *http.Request) {
		n := h.polls.Add(1)
		if n <= h.statusErrors {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		task := taskEncoding
		if n > h.statusErrors+h.encodingPolls {
			task = h.finalTask
		}
		if task == "" {
			w.Write([]byte(`{"errorMessage":"maintenance"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"task": task})
	})
	return mux
}

func newTestUploader(t *testing.T, host *fakeHost) (*HTTPUploader, string) {
	t.Helper()
	server := httptest.NewServer(host.handler())
	t.Cleanup(server.Close)

	u := NewHTTPUploader(Config{
		APIURL:       server.URL + "/",
		FileDropURL:  server.URL + "/drop",
		ShareURL:     "https://share.example",
		ClientID:     "id",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "pw",
	}, testLogger())
	u.SetPolling(time.Millisecond, 5)

	path := filepath.Join(t.TempDir(), "trailer.webm")
	if err := os.WriteFile(path, []byte("webm-bytes"), 0644); err != nil {
		t.Fatalf("write trailer: %v", err)
	}
	return u, path
}

func TestHTTPUploader_Upload_Success(t *testing.T) {
	host := &fakeHost{t: t, encodingPolls: 2, finalTask: taskComplete}
	u, path := newTestUploader(t, host)

	link, err := u.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if link != "https://share.example/brightquietfox" {
		t.Errorf("link = %q", link)
	}
	if got := host.auth.Load(); got != "Bearer tok-123" {
		t.Errorf("Authorization = %v, want Bearer tok-123", got)
	}
	if got := host.uploaded.Load(); got != "webm-bytes" {
		t.Errorf("uploaded body = %v", got)
	}
	if n := host.polls.Load(); n != 3 {
		t.Errorf("status polls = %d, want 3", n)
	}
}

func TestHTTPUploader_Upload_TokenRejected(t *testing.T) {
	host := &fakeHost{t: t, tokenStatus: http.StatusUnauthorized}
	u, path := newTestUploader(t, host)

	_, err := u.Upload(context.Background(), path)

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadError, got %T (%v)", err, err)
	}
	if uploadErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", uploadErr.StatusCode)
	}
	if uploadErr.Error() != "(401) Error requesting token" {
		t.Errorf("Error() = %q", uploadErr.Error())
	}
	if !strings.Contains(uploadErr.Body, "bad credentials") {
		t.Errorf("Body = %q", uploadErr.Body)
	}
}

func TestHTTPUploader_Upload_GivesUpAfterMaxPolls(t *testing.T) {
	host := &fakeHost{t: t, encodingPolls: 100, finalTask: taskComplete}
	u, path := newTestUploader(t, host)

	_, err := u.Upload(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "trailer.webm - upload could not be created") {
		t.Fatalf("Upload() error = %v, want could not be created", err)
	}
	if n := host.polls.Load(); n != 6 {
		t.Errorf("status polls = %d, want 6", n)
	}
}

func TestHTTPUploader_Upload_TransientStatusError(t *testing.T) {
	host := &fakeHost{t: t, statusErrors: 2, encodingPolls: 1, finalTask: taskComplete}
	u, path := newTestUploader(t, host)

	if _, err := u.Upload(context.Background(), path); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if n := host.polls.Load(); n != 4 {
		t.Errorf("status polls = %d, want 4", n)
	}
}

func TestHTTPUploader_Upload_StatusRejected(t *testing.T) {
	host := &fakeHost{t: t, statusErrors: 100}
	u, path := newTestUploader(t, host)

	_, err := u.Upload(context.Background(), path)
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) || uploadErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Upload() error = %v, want 503 UploadError", err)
	}
	if n := host.polls.Load(); n != 6 {
		t.Errorf("status polls = %d, want 6", n)
	}
}

func TestHTTPUploader_Upload_FailedTask(t *testing.T) {
	host := &fakeHost{t: t, finalTask: "error"}
	u, path := newTestUploader(t, host)

	if _, err := u.Upload(context.Background(), path); err == nil {
		t.Fatal("Upload() error = nil for failed task")
	}
}

func TestHTTPUploader_Upload_StatusUnavailable(t *testing.T) {
	host := &fakeHost{t: t, finalTask: ""}
	u, path := newTestUploader(t, host)

	_, err := u.Upload(context.Background(), path)
	if err == nil || err.Error() != "upload API not available" {
		t.Fatalf("Upload() error = %v, want upload API not available", err)
	}
}

func TestHTTPUploader_Upload_NotConfigured(t *testing.T) {
	u := NewHTTPUploader(Config{APIURL: "http://127.0.0.1:1"}, testLogger())
	if _, err := u.Upload(context.Background(), "/tmp/x.webm"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Upload() error = %v, want ErrNotConfigured", err)
	}
}

func TestHTTPUploader_Upload_ContextCancelled(t *testing.T) {
	host := &fakeHost{t: t, encodingPolls: 100, finalTask: taskComplete}
	u, path := newTestUploader(t, host)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := u.Upload(ctx, path); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestUploadError_IsRetryable(t *testing.T) {
	if !(&UploadError{StatusCode: http.StatusInternalServerError}).IsRetryable() {
		t.Fatal("expected 5xx upload error to be retryable")
	}
	if (&UploadError{StatusCode: http.StatusBadRequest}).IsRetryable() {
		t.Fatal("expected 4xx upload error to be permanent")
	}
}
