// Package cloud uploads finished trailers to a hosted video service: a
// password-grant token request, an upload slot, a file-drop PUT and status
// polling until the host has transcoded the file.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxPolls     = 300
)

var ErrNotConfigured = errors.New("upload credentials not configured")

// UploadError is a non-2xx response from the upload host. Its message is
// what the status channel shows.
type UploadError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("(%d) %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *UploadError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Config holds the upload host endpoints and credentials.
type Config struct {
	APIURL       string
	FileDropURL  string
	ShareURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Configured reports whether every field needed to upload is set.
func (c Config) Configured() bool {
	return c.APIURL != "" && c.FileDropURL != "" && c.ShareURL != "" &&
		c.ClientID != "" && c.ClientSecret != "" && c.Username != "" && c.Password != ""
}

// HTTPUploader implements trailer.Uploader against the upload host's REST API.
type HTTPUploader struct {
	cfg          Config
	httpClient   *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
	maxPolls     int
}

func NewHTTPUploader(cfg Config, logger *slog.Logger) *HTTPUploader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPUploader{
		cfg: Config{
			APIURL:       strings.TrimRight(cfg.APIURL, "/"),
			FileDropURL:  strings.TrimRight(cfg.FileDropURL, "/"),
			ShareURL:     strings.TrimRight(cfg.ShareURL, "/"),
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Username:     cfg.Username,
			Password:     cfg.Password,
		},
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger:       logger,
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
	}
}

// SetPolling overrides the status poll cadence.
func (u *HTTPUploader) SetPolling(interval time.Duration, maxPolls int) {
	u.pollInterval = interval
	u.maxPolls = maxPolls
}

// do sends req and decodes a 200 response into out. Any other status
// becomes an UploadError carrying msg.
func (u *HTTPUploader) do(req *http.Request, msg string, out any) error {
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		u.logger.Warn("upload host rejected request",
			"url", req.URL.String(),
			"status", resp.StatusCode,
			"body", truncate(string(body), 256),
		)
		return &UploadError{StatusCode: resp.StatusCode, Message: msg, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", msg, err)
	}
	return nil
}

func jsonRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
