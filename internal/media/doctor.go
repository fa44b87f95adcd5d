package media

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// ToolInfo is the availability of one external binary.
type ToolInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities reports which media tools the agent can run.
type Capabilities struct {
	FFmpeg   ToolInfo  `json:"ffmpeg"`
	FFprobe  ToolInfo  `json:"ffprobe"`
	ProbedAt time.Time `json:"probed_at"`
}

// Ready reports whether both probing and encoding can run.
func (c *Capabilities) Ready() bool {
	return c != nil && c.FFmpeg.Available && c.FFprobe.Available
}

// Checker inspects the installed tools.
type Checker interface {
	Check(ctx context.Context) (*Capabilities, error)
}

// ToolChecker resolves the configured ffmpeg and ffprobe binaries and reads
// their version banners.
type ToolChecker struct {
	FFmpegBin  string
	FFprobeBin string
	Logger     *slog.Logger
}

func (t ToolChecker) Check(ctx context.Context) (*Capabilities, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	caps := &Capabilities{
		FFmpeg:   inspectTool(ctx, logger, orDefault(t.FFmpegBin, "ffmpeg")),
		FFprobe:  inspectTool(ctx, logger, orDefault(t.FFprobeBin, "ffprobe")),
		ProbedAt: time.Now(),
	}
	logger.Info("tool check complete", "ffmpeg", caps.FFmpeg.Available, "ffprobe", caps.FFprobe.Available)
	return caps, nil
}

func inspectTool(ctx context.Context, logger *slog.Logger, bin string) ToolInfo {
	path, err := exec.LookPath(bin)
	if err != nil {
		return ToolInfo{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res := run(ctx, logger, path, "-version")
	if !res.IsSuccess() {
		return ToolInfo{Path: path, Error: truncate(res.StderrTail, 256)}
	}
	return ToolInfo{Available: true, Path: path, Version: versionLine(string(res.Stdout))}
}

// versionLine extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func versionLine(out string) string {
	first, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(first)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(first)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// CachedDoctor caches tool checks for a TTL so /status does not fork two
// processes on every request.
type CachedDoctor struct {
	checker Checker
	ttl     time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(checker Checker, logger *slog.Logger) *CachedDoctor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedDoctor{
		checker: checker,
		ttl:     defaultCacheTTL,
		logger:  logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-checks.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new check regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.checker.Check(ctx)
	if err != nil {
		d.logger.Warn("tool check failed", "error", err)
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
