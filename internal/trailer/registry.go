package trailer

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
)

// formatTTY is what ffprobe reports for plain text files it can "decode".
const formatTTY = "tty"

// Change describes the effect of a registry mutation so callers can reconcile
// their view without rescanning.
type Change struct {
	Added   []int    `json:"added"`
	Dropped []string `json:"dropped"`
	Removed int      `json:"removed"`
}

// Registry is the ordered set of probed source jobs, keyed by source path.
type Registry struct {
	prober Prober
	logger *slog.Logger
	jobs   []Job
}

func NewRegistry(prober Prober, logger *slog.Logger) *Registry {
	return &Registry{prober: prober, logger: logger}
}

// ProbeSource measures path and builds its job. It reports false for anything
// that is not a playable media file.
func ProbeSource(ctx context.Context, prober Prober, path string) (Job, bool) {
	res, err := prober.Probe(ctx, path)
	if err != nil || res.FormatName == "" || res.FormatName == formatTTY {
		return Job{}, false
	}

	secs, err := strconv.ParseFloat(res.Duration, 64)
	if err != nil || math.IsNaN(secs) || secs < 0 {
		return Job{}, false
	}
	// float64(math.MaxInt64) is 2^63, which no longer fits.
	length := math.RoundToEven(secs)
	if length >= float64(math.MaxInt64) {
		return Job{}, false
	}

	return Job{
		SourcePath:    path,
		SourceDir:     filepath.Dir(path),
		TargetPath:    TargetPath(path),
		LengthSeconds: int64(length),
	}, true
}

// Add probes and appends every path not already registered. Each new path is
// probed once; failures are reported in Change.Dropped.
func (r *Registry) Add(ctx context.Context, paths []string) Change {
	seen := make(map[string]bool, len(r.jobs)+len(paths))
	for _, j := range r.jobs {
		seen[j.SourcePath] = true
	}

	var change Change
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true

		job, ok := ProbeSource(ctx, r.prober, p)
		if !ok {
			r.log().Warn("invalid source", "path", p)
			change.Dropped = append(change.Dropped, p)
			continue
		}

		r.log().Info("valid source", "path", p, "length_s", job.LengthSeconds)
		r.jobs = append(r.jobs, job)
		change.Added = append(change.Added, len(r.jobs)-1)
	}
	return change
}

// ReplaceAll empties the registry and adds paths.
func (r *Registry) ReplaceAll(ctx context.Context, paths []string) Change {
	removed := r.Clear()
	change := r.Add(ctx, paths)
	change.Removed = removed
	return change
}

// Remove deletes the job for path and returns the index it occupied.
func (r *Registry) Remove(path string) (int, bool) {
	for i, j := range r.jobs {
		if j.SourcePath == path {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			return i, true
		}
	}
	return -1, false
}

// Clear empties the registry and returns how many jobs were removed.
func (r *Registry) Clear() int {
	n := len(r.jobs)
	r.jobs = nil
	return n
}

func (r *Registry) Len() int {
	return len(r.jobs)
}

// Jobs returns a copy of the registered jobs in registry order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}
