package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cliptrail/cliptrail-agent/internal/logging"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

// FFprobe measures source videos with the ffprobe binary.
type FFprobe struct {
	bin    string
	logger *slog.Logger
}

func NewFFprobe(bin string, logger *slog.Logger) *FFprobe {
	if bin == "" {
		bin = "ffprobe"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FFprobe{bin: bin, logger: logger}
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func (p *FFprobe) Probe(ctx context.Context, path string) (trailer.ProbeResult, error) {
	res := run(ctx, p.logger, p.bin,
		"-v", "error",
		"-show_entries", "format=duration,format_name",
		"-of", "json",
		path,
	)
	if !res.IsSuccess() {
		return trailer.ProbeResult{}, fmt.Errorf("ffprobe %s exited %d: %s",
			logging.SanitizePath(path), res.ExitCode, truncate(res.StderrTail, 256))
	}
	return parseProbeOutput(res.Stdout)
}

func parseProbeOutput(data []byte) (trailer.ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return trailer.ProbeResult{}, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}
	if out.Format.FormatName == "" {
		return trailer.ProbeResult{}, fmt.Errorf("ffprobe reported no container format")
	}
	return trailer.ProbeResult{
		FormatName: out.Format.FormatName,
		Duration:   out.Format.Duration,
	}, nil
}
