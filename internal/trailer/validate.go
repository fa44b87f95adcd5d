package trailer

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/cliptrail/cliptrail-agent/internal/timecode"
)

const (
	MsgNoSources        = "No source videos"
	MsgInvalidStartTime = "Invalid start time"
	MsgInvalidEndTime   = "Invalid end time"
	MsgEndBeforeStart   = "Invalid end time before start time"
	MsgInvalidDuration  = "Invalid duration"
	MsgInvalidNumClips  = "Invalid no. of clips"
)

// Parse converts raw options into numbers. On failure it returns the
// field-specific message for the first field that did not parse.
func Parse(opts Options) (Parsed, string) {
	var p Parsed
	var ok bool

	if p.Start, ok = timecode.ParseTimecode(opts.StartTime); !ok {
		return Parsed{}, MsgInvalidStartTime
	}
	if opts.EndTime != "" {
		if p.End, ok = timecode.ParseTimecode(opts.EndTime); !ok {
			return Parsed{}, MsgInvalidEndTime
		}
	}
	if p.Duration, ok = timecode.ParseBoundedInt(opts.Duration); !ok || p.Duration.Sign() <= 0 {
		return Parsed{}, MsgInvalidDuration
	}
	if p.NumClips, ok = timecode.ParseBoundedInt(opts.NumClips); !ok || p.NumClips.Sign() <= 0 {
		return Parsed{}, MsgInvalidNumClips
	}
	return p, ""
}

// Validate runs one validation pass over jobs. A parse failure or an empty
// registry yields a single batch result; otherwise there is one result per
// job in registry order, and one job failing never affects another.
func Validate(jobs []Job, opts Options, logger *slog.Logger) []Result {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if len(jobs) == 0 {
		return []Result{batchFailure(MsgNoSources)}
	}

	parsed, msg := Parse(opts)
	if msg != "" {
		logger.Warn(msg)
		return []Result{batchFailure(msg)}
	}

	results := make([]Result, 0, len(jobs))
	for i, job := range jobs {
		res := validateJob(job, parsed)
		res.Index = i
		if !res.Valid {
			logger.Warn(res.Message, "source", job.SourcePath)
		}
		results = append(results, res)
	}
	return results
}

func validateJob(job Job, p Parsed) Result {
	res := Result{SourcePath: job.SourcePath}

	length := big.NewInt(job.LengthSeconds)
	end := length
	if p.End != nil {
		end = p.End
	}
	working := new(big.Int).Sub(end, p.Start)
	trailerLen := new(big.Int).Mul(p.NumClips, p.Duration)

	switch {
	case p.End != nil && p.End.Cmp(length) > 0:
		res.Message = MsgInvalidEndTime
	case p.End != nil && p.End.Cmp(p.Start) < 0:
		res.Message = MsgEndBeforeStart
	case p.Duration.Cmp(working) > 0:
		res.Message = MsgInvalidDuration
	case trailerLen.Cmp(working) > 0:
		res.Message = MsgInvalidNumClips
	default:
		jump := new(big.Int).Quo(working, p.NumClips)
		res.Valid = true
		res.Jump = jump.Int64()
		res.Message = fmt.Sprintf("%ds trailer using %d x %ds clips, taken every %ds",
			trailerLen, p.NumClips, p.Duration, jump)
	}
	return res
}

func batchFailure(msg string) Result {
	return Result{Valid: false, Index: BatchIndex, Message: msg}
}

// AllValid reports whether results cover at least one source and every
// source passed.
func AllValid(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.IsBatch() || !r.Valid {
			return false
		}
	}
	return true
}
