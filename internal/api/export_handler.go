package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cliptrail/cliptrail-agent/internal/export"
)

func exportPlanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		format, err := export.ParseFormat(req.Format)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = export.DefaultFrameRate
		}

		plan, results, ok := cfg.Service.Plan()
		if !ok {
			writeInvalidPlan(w, results)
			return
		}
		projectName := export.PlanName(req.ProjectName, plan)

		var buf bytes.Buffer
		if err := export.Write(&buf, plan, format, projectName, frameRate); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to render plan", "INTERNAL_ERROR")
			return
		}

		outputPath := filepath.Join(req.OutputDir, projectName+format.Extension())
		if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
			cfg.Logger.Error("failed to write export file", "path", outputPath, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, export.ExportResponse{
			Status:     "ok",
			Format:     string(format),
			OutputPath: outputPath,
			ClipCount:  len(plan.Source) * int(plan.NumClips),
		})
	}
}
