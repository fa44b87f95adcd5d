// Package trailer turns user-supplied trailer options and a set of probed
// source videos into a validated extraction plan.
package trailer

import (
	"context"
	"math/big"
	"path/filepath"
	"strings"
)

// TargetExtension is the container every trailer is encoded into.
const TargetExtension = ".webm"

// BatchIndex marks a Result that is not attributable to any single source.
const BatchIndex = -1

// Job is one probed, playable source video.
type Job struct {
	SourcePath    string `json:"source_path"`
	SourceDir     string `json:"source_dir"`
	TargetPath    string `json:"target_path"`
	LengthSeconds int64  `json:"length_seconds"`
}

// Options holds the raw option text exactly as the user entered it.
// An empty EndTime means each source's own length is used.
type Options struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Duration  string `json:"duration"`
	NumClips  string `json:"num_clips"`
}

// Parsed is the numeric form of Options. End is nil when no end time was given.
type Parsed struct {
	Start    *big.Int
	End      *big.Int
	Duration *big.Int
	NumClips *big.Int
}

// Result is the outcome of validating one source, or the whole batch when
// Index is BatchIndex.
type Result struct {
	Valid      bool   `json:"valid"`
	Index      int    `json:"index"`
	SourcePath string `json:"source_path"`
	Message    string `json:"message"`
	Jump       int64  `json:"jump,omitempty"`
}

// IsBatch reports whether the result describes the batch rather than a source.
func (r Result) IsBatch() bool {
	return r.Index == BatchIndex
}

// Plan is the flat structure handed to the encoder. Source, Target and Jump
// are parallel slices keyed by registry index.
type Plan struct {
	Source    []string `json:"source" yaml:"source"`
	Target    []string `json:"target" yaml:"target"`
	StartTime int64    `json:"start_time" yaml:"start_time"`
	EndTime   *int64   `json:"end_time" yaml:"end_time"`
	Duration  int64    `json:"duration" yaml:"duration"`
	NumClips  int64    `json:"num_clips" yaml:"num_clips"`
	Jump      []int64  `json:"jump" yaml:"jump"`
}

// ClipStarts returns the start offset of every sub-clip taken from source i.
func (p Plan) ClipStarts(i int) []int64 {
	starts := make([]int64, 0, p.NumClips)
	for k := int64(0); k < p.NumClips; k++ {
		starts = append(starts, p.StartTime+k*p.Jump[i])
	}
	return starts
}

// ProbeResult is what a media prober reports for a path.
type ProbeResult struct {
	FormatName string
	Duration   string
}

// Prober measures source videos.
type Prober interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// Encoder extracts and concatenates the sub-clips described by a plan.
type Encoder interface {
	Encode(ctx context.Context, plan Plan) error
}

// Uploader pushes a finished trailer to a remote host and returns its link.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// TargetPath derives the trailer path for a source by swapping its extension.
func TargetPath(sourcePath string) string {
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + TargetExtension
}
