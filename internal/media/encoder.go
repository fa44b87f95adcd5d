package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/cliptrail/cliptrail-agent/internal/logging"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

const (
	videoCodec   = "libvpx"
	videoBitrate = "3M"
	concatList   = "cliplist.txt"
)

// FFmpegEncoder cuts every source's sub-clips into a scratch directory next to
// the source, then concatenates them into the source's target.
type FFmpegEncoder struct {
	bin     string
	threads int
	logger  *slog.Logger
}

func NewFFmpegEncoder(bin string, logger *slog.Logger) *FFmpegEncoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FFmpegEncoder{bin: bin, threads: 2, logger: logger}
}

// Encode renders every source in plan order and stops at the first failure.
func (e *FFmpegEncoder) Encode(ctx context.Context, plan trailer.Plan) error {
	if len(plan.Source) != len(plan.Target) || len(plan.Source) != len(plan.Jump) {
		return fmt.Errorf("malformed plan: %d sources, %d targets, %d jumps",
			len(plan.Source), len(plan.Target), len(plan.Jump))
	}
	for i := range plan.Source {
		if err := e.encodeSource(ctx, plan, i); err != nil {
			return err
		}
	}
	return nil
}

func (e *FFmpegEncoder) encodeSource(ctx context.Context, plan trailer.Plan, i int) error {
	src, target := plan.Source[i], plan.Target[i]
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))

	tmpDir, err := os.MkdirTemp(filepath.Dir(src), ".cliptrail-")
	if err != nil {
		return fmt.Errorf("cannot create scratch dir: %w", err)
	}

	e.logger.Info("encoding trailer",
		"source", logging.SanitizePath(src),
		"clips", plan.NumClips,
		"jump_s", plan.Jump[i],
	)

	clips := make([]string, 0, plan.NumClips)
	for k, start := range plan.ClipStarts(i) {
		clip := filepath.Join(tmpDir, fmt.Sprintf("%s_%d%s", base, k, trailer.TargetExtension))
		if err := e.exec(ctx, ClipArgs(src, clip, start, plan.Duration)); err != nil {
			return fmt.Errorf("clip %d of %s: %w", k, filepath.Base(src), err)
		}
		clips = append(clips, clip)
	}

	list := filepath.Join(tmpDir, concatList)
	if err := os.WriteFile(list, []byte(ConcatList(clips)), 0644); err != nil {
		return fmt.Errorf("cannot write clip list: %w", err)
	}
	if err := e.exec(ctx, ConcatArgs(list, target, e.threads)); err != nil {
		return fmt.Errorf("concat %s: %w", filepath.Base(target), err)
	}

	// Scratch files are kept after a failure for inspection.
	if err := os.RemoveAll(tmpDir); err != nil {
		e.logger.Warn("failed to remove scratch dir", "dir", logging.SanitizePath(tmpDir), "error", err)
	}
	e.logger.Info("trailer written", "target", logging.SanitizePath(target))
	return nil
}

func (e *FFmpegEncoder) exec(ctx context.Context, args []string) error {
	res := run(ctx, e.logger, e.bin, args...)
	if !res.IsSuccess() {
		return fmt.Errorf("ffmpeg exited %d: %s", res.ExitCode, truncate(strings.TrimSpace(res.StderrTail), 512))
	}
	return nil
}

// ClipArgs builds the ffmpeg arguments that cut one sub-clip of duration
// seconds starting at start.
func ClipArgs(src, out string, start, duration int64) []string {
	return ffmpeg.Input(src, ffmpeg.KwArgs{
		"fflags": "+genpts",
		"ss":     strconv.FormatInt(start, 10),
	}).Output(out, ffmpeg.KwArgs{
		"t":                 strconv.FormatInt(duration, 10),
		"c:v":               videoCodec,
		"b:v":               videoBitrate,
		"an":                "",
		"avoid_negative_ts": "1",
	}).GlobalArgs("-loglevel", "error").OverWriteOutput().GetArgs()
}

// ConcatArgs builds the ffmpeg arguments that join the clips named in list.
func ConcatArgs(list, target string, threads int) []string {
	return ffmpeg.Input(list, ffmpeg.KwArgs{
		"fflags": "+genpts",
		"f":      "concat",
		"safe":   "0",
	}).Output(target, ffmpeg.KwArgs{
		"c:v":     videoCodec,
		"b:v":     videoBitrate,
		"an":      "",
		"threads": strconv.Itoa(threads),
	}).GlobalArgs("-loglevel", "error").OverWriteOutput().GetArgs()
}

// ConcatList renders the concat demuxer's input file.
func ConcatList(clips []string) string {
	var b strings.Builder
	for _, c := range clips {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(c, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
