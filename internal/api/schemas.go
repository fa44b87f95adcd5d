package api

import (
	"time"

	"github.com/cliptrail/cliptrail-agent/internal/history"
	"github.com/cliptrail/cliptrail-agent/internal/media"
	"github.com/cliptrail/cliptrail-agent/internal/presets"
	"github.com/cliptrail/cliptrail-agent/internal/timecode"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State        string               `json:"state"`
	Created      bool                 `json:"created"`
	SourcesCount int                  `json:"sources_count"`
	Messages     []MessageResponse    `json:"messages"`
	Tools        *ToolsStatusResponse `json:"tools,omitempty"`
}

type MessageResponse struct {
	Level string `json:"level"`
	Text  string `json:"text"`
	Line  string `json:"line"`
}

type ToolsStatusResponse struct {
	Ready       bool           `json:"ready"`
	FFmpeg      media.ToolInfo `json:"ffmpeg"`
	FFprobe     media.ToolInfo `json:"ffprobe"`
	LastProbeAt string         `json:"last_probe_at,omitempty"`
}

type SourcesRequest struct {
	Paths []string `json:"paths"`
}

type SourceResponse struct {
	Index         int    `json:"index"`
	SourcePath    string `json:"source_path"`
	TargetPath    string `json:"target_path"`
	LengthSeconds int64  `json:"length_seconds"`
	Length        string `json:"length"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

type ChangeResponse struct {
	Added   []int            `json:"added"`
	Dropped []string         `json:"dropped"`
	Removed int              `json:"removed"`
	Sources []SourceResponse `json:"sources"`
}

type RemoveResponse struct {
	Index int `json:"index"`
}

type ClearResponse struct {
	Removed int `json:"removed"`
}

type OptionsRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Duration  string `json:"duration"`
	NumClips  string `json:"num_clips"`
}

type ResultsResponse struct {
	Options trailer.Options  `json:"options"`
	Valid   bool             `json:"valid"`
	Results []trailer.Result `json:"results"`
}

type PresetRequest struct {
	Name string `json:"name"`
}

type PresetsResponse struct {
	Presets []presets.Summary `json:"presets"`
}

type MessageOnlyResponse struct {
	Message MessageResponse `json:"message"`
}

type RenderResponse struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Sources   int              `json:"sources"`
	Targets   []string         `json:"targets"`
	Error     string           `json:"error,omitempty"`
	Uploads   []UploadResponse `json:"uploads"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
}

type UploadResponse struct {
	Path   string `json:"path"`
	Link   string `json:"link,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type RendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func MessageToResponse(m trailer.Message) MessageResponse {
	return MessageResponse{Level: m.Level, Text: m.Text, Line: m.String()}
}

func JobToResponse(index int, j trailer.Job) SourceResponse {
	return SourceResponse{
		Index:         index,
		SourcePath:    j.SourcePath,
		TargetPath:    j.TargetPath,
		LengthSeconds: j.LengthSeconds,
		Length:        timecode.FormatSeconds(j.LengthSeconds),
	}
}

func ChangeToResponse(c trailer.Change, jobs []trailer.Job) ChangeResponse {
	resp := ChangeResponse{
		Added:   c.Added,
		Dropped: c.Dropped,
		Removed: c.Removed,
		Sources: JobsToResponse(jobs),
	}
	if resp.Added == nil {
		resp.Added = []int{}
	}
	if resp.Dropped == nil {
		resp.Dropped = []string{}
	}
	return resp
}

func JobsToResponse(jobs []trailer.Job) []SourceResponse {
	out := make([]SourceResponse, len(jobs))
	for i, j := range jobs {
		out[i] = JobToResponse(i, j)
	}
	return out
}

func RenderToResponse(rd *history.Render, uploads []*history.Upload) RenderResponse {
	resp := RenderResponse{
		ID:        rd.ID,
		Status:    rd.Status,
		Sources:   rd.Sources,
		Targets:   rd.Targets,
		Error:     rd.Error,
		Uploads:   make([]UploadResponse, len(uploads)),
		CreatedAt: rd.CreatedAt.Format(time.RFC3339),
		UpdatedAt: rd.UpdatedAt.Format(time.RFC3339),
	}
	if resp.Targets == nil {
		resp.Targets = []string{}
	}
	for i, u := range uploads {
		resp.Uploads[i] = UploadResponse{Path: u.Path, Link: u.Link, Status: u.Status, Error: u.Error}
	}
	return resp
}
