// Package export renders a trailer plan for other tools: JSON and YAML for
// scripts, CMX3600 EDL for editors that want to rebuild the cut themselves.
package export

import (
	"fmt"
	"strings"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatEDL  Format = "edl"
)

// ParseFormat accepts a format name case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "edl":
		return FormatEDL, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json, yaml or edl)", s)
	}
}

func (f Format) Extension() string {
	return "." + string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatEDL:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

type ExportRequest struct {
	ProjectName string  `json:"project_name"`
	Format      string  `json:"format"`
	FrameRate   float64 `json:"frame_rate"`
	OutputDir   string  `json:"output_dir"`
}

// ResolvedClip is one sub-clip of a source placed on the record timeline.
type ResolvedClip struct {
	ClipName  string
	MediaPath string
	StartMs   int64
	EndMs     int64
}

type ExportResponse struct {
	Status     string `json:"status"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	ClipCount  int    `json:"clip_count"`
}
