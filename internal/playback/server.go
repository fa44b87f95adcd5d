// Package playback serves finished trailers to a local player. Only files
// with the trailer container extension are served.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

var ErrNotTrailer = errors.New("not a trailer file")

type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{logger: logger}
}

// ServeFile writes the trailer at filePath, honouring Range and conditional
// headers. A missing file is answered with 404 and a nil error.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	if !strings.EqualFold(filepath.Ext(filePath), trailer.TargetExtension) {
		return ErrNotTrailer
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		return ErrNotTrailer
	}

	w.Header().Set("Content-Type", "video/webm")
	w.Header().Set("Accept-Ranges", "bytes")
	s.logger.Debug("serving trailer", "path", filePath, "size", stat.Size(), "range", r.Header.Get("Range"))
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	return nil
}
