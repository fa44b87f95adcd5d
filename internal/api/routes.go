package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cliptrail/cliptrail-agent/internal/export"
	"github.com/cliptrail/cliptrail-agent/internal/presets"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/sources", listSourcesHandler(cfg))
		r.Post("/sources", addSourcesHandler(cfg))
		r.Put("/sources", replaceSourcesHandler(cfg))
		r.Delete("/sources", clearSourcesHandler(cfg))
		r.Delete("/sources/item", removeSourceHandler(cfg))

		r.Put("/options", setOptionsHandler(cfg))
		r.Post("/preview", previewHandler(cfg))

		r.Get("/presets", listPresetsHandler(cfg))
		r.Post("/presets", savePresetHandler(cfg))
		r.Post("/presets/load", loadPresetHandler(cfg))

		r.Get("/plan", planHandler(cfg))
		r.Post("/plan/export", exportPlanHandler(cfg))

		r.Post("/trailer", createHandler(cfg))
		r.Post("/trailer/upload", uploadHandler(cfg))
		r.Get("/renders", listRendersHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())
			r.Get("/trailer/file", trailerFileHandler(cfg))
			r.Head("/trailer/file", trailerFileHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := cfg.Service
		recent := svc.Feed().Recent()

		state := "idle"
		switch {
		case svc.IsBusy():
			state = "running"
		case svc.IsCreated():
			state = "created"
		case len(recent) > 0 && recent[len(recent)-1].IsError():
			state = "error"
		}

		resp := StatusResponse{
			State:        state,
			Created:      svc.IsCreated(),
			SourcesCount: len(svc.Sources()),
			Messages:     make([]MessageResponse, len(recent)),
		}
		for i, m := range recent {
			resp.Messages[i] = MessageToResponse(m)
		}

		// Peek never forks the tools; the cache is warmed at startup.
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Tools = &ToolsStatusResponse{
					Ready:   caps.Ready(),
					FFmpeg:  caps.FFmpeg,
					FFprobe: caps.FFprobe,
				}
				if !caps.ProbedAt.IsZero() {
					resp.Tools.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, SourcesResponse{Sources: JobsToResponse(cfg.Service.Sources())})
	}
}

func decodeSources(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req SourcesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return nil, false
	}
	if len(req.Paths) == 0 {
		WriteError(w, http.StatusBadRequest, "paths is required", "BAD_REQUEST")
		return nil, false
	}
	return req.Paths, true
}

func addSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paths, ok := decodeSources(w, r)
		if !ok {
			return
		}
		change := cfg.Service.AddSources(r.Context(), paths)
		WriteJSON(w, http.StatusOK, ChangeToResponse(change, cfg.Service.Sources()))
	}
}

func replaceSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paths, ok := decodeSources(w, r)
		if !ok {
			return
		}
		change := cfg.Service.ReplaceSources(r.Context(), paths)
		WriteJSON(w, http.StatusOK, ChangeToResponse(change, cfg.Service.Sources()))
	}
}

func clearSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, ClearResponse{Removed: cfg.Service.ClearSources()})
	}
}

func removeSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		idx, ok := cfg.Service.RemoveSource(path)
		if !ok {
			WriteError(w, http.StatusNotFound, "source not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, RemoveResponse{Index: idx})
	}
}

func setOptionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OptionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		opts := trailer.Options{
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Duration:  req.Duration,
			NumClips:  req.NumClips,
		}
		writeResults(w, opts, cfg.Service.SetOptions(opts))
	}
}

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := cfg.Service.Preview()
		writeResults(w, cfg.Service.Options(), results)
	}
}

func writeResults(w http.ResponseWriter, opts trailer.Options, results []trailer.Result) {
	if results == nil {
		results = []trailer.Result{}
	}
	WriteJSON(w, http.StatusOK, ResultsResponse{
		Options: opts,
		Valid:   trailer.AllValid(results),
		Results: results,
	})
}

func listPresetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := cfg.Service.Presets()
		if list == nil {
			list = []presets.Summary{}
		}
		WriteJSON(w, http.StatusOK, PresetsResponse{Presets: list})
	}
}

func savePresetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PresetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := cfg.Service.SavePreset(req.Name); err != nil {
			writePresetError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, PresetsResponse{Presets: cfg.Service.Presets()})
	}
}

func loadPresetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PresetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		opts, results, err := cfg.Service.LoadPreset(req.Name)
		if err != nil {
			writePresetError(w, err)
			return
		}
		writeResults(w, opts, results)
	}
}

func writePresetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, presets.ErrNoSelection), errors.Is(err, presets.ErrInvalidName):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, presets.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, presets.ErrDuplicate):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, trailer.ErrInvalidPreset):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_PRESET")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func planHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		plan, results, ok := cfg.Service.Plan()
		if !ok {
			writeInvalidPlan(w, results)
			return
		}

		var buf bytes.Buffer
		if err := export.Write(&buf, plan, format, "cliptrail", export.DefaultFrameRate); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to render plan", "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", format.ContentType())
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

func writeInvalidPlan(w http.ResponseWriter, results []trailer.Result) {
	if results == nil {
		results = []trailer.Result{}
	}
	WriteJSON(w, http.StatusUnprocessableEntity, struct {
		ErrorResponse
		Results []trailer.Result `json:"results"`
	}{
		ErrorResponse: ErrorResponse{Error: trailer.MsgInvalidConfig, Code: "INVALID_CONFIGURATION"},
		Results:       results,
	})
}

func createHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, cfg.Service.Create(r.Context()), http.StatusAccepted)
	}
}

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, cfg.Service.Upload(r.Context()), http.StatusAccepted)
	}
}

// writeMessage answers with the status line; refusals become 409.
func writeMessage(w http.ResponseWriter, m trailer.Message, okStatus int) {
	status := okStatus
	if m.IsError() {
		status = http.StatusConflict
	}
	WriteJSON(w, status, MessageOnlyResponse{Message: MessageToResponse(m)})
}

func listRendersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		renders, err := cfg.Repository.ListRenders(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list renders", "INTERNAL_ERROR")
			return
		}

		resp := RendersResponse{Renders: make([]RenderResponse, len(renders))}
		for i, rd := range renders {
			uploads, err := cfg.Repository.ListUploads(r.Context(), rd.ID)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to list uploads", "INTERNAL_ERROR")
				return
			}
			resp.Renders[i] = RenderToResponse(rd, uploads)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func trailerFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("index")
		if raw == "" {
			WriteError(w, http.StatusBadRequest, "index is required", "BAD_REQUEST")
			return
		}
		index, err := strconv.Atoi(raw)
		if err != nil || index < 0 {
			WriteError(w, http.StatusBadRequest, "index must be a non-negative integer", "BAD_REQUEST")
			return
		}

		if !cfg.Service.IsCreated() {
			WriteError(w, http.StatusNotFound, trailer.MsgNotCreated, "NOT_CREATED")
			return
		}
		targets := cfg.Service.Targets()
		if index >= len(targets) {
			WriteError(w, http.StatusNotFound, "trailer not found", "NOT_FOUND")
			return
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, targets[index]); err != nil {
			cfg.Logger.Error("playback error", "error", err, "index", index)
			WriteError(w, http.StatusInternalServerError, "failed to serve trailer", "INTERNAL_ERROR")
		}
	}
}
