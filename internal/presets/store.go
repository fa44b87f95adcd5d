// Package presets persists named trailer option sets in an INI file, one
// section per preset.
package presets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

const (
	keyStartTime = "start_time"
	keyEndTime   = "end_time"
	keyDuration  = "duration"
	keyNumClip   = "num_clip"
)

var (
	ErrDuplicate   = errors.New("duplicate preset name")
	ErrNotFound    = errors.New("invalid preset")
	ErrNoSelection = errors.New("no preset selected")
	ErrInvalidName = errors.New("invalid preset name")
)

// Preset is a named snapshot of the raw option text.
type Preset struct {
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Duration  string `json:"duration"`
	NumClips  string `json:"num_clips"`
}

// Summary is the one-line description shown when listing presets.
type Summary struct {
	Name string `json:"name"`
	Text string `json:"summary"`
}

// Store is an INI-backed preset store. Every Save rewrites the whole file;
// writers in other processes are not coordinated with.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	file *ini.File
}

// Open loads the preset file at path, creating an empty one if it is absent.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create presets directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create presets file: %w", err)
	}
	f.Close()

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{path: path, logger: logger, file: file}, nil
}

func (s *Store) Path() string {
	return s.path
}

// List returns a summary per preset in file order.
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Summary
	for _, sec := range s.file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		p := fromSection(sec)
		out = append(out, Summary{Name: p.Name, Text: p.Summary()})
	}
	return out
}

// Save adds p and persists the file. An existing name is never overwritten.
func (s *Store) Save(p Preset) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file.HasSection(p.Name) {
		s.logger.Warn("duplicate preset name", "name", p.Name)
		return ErrDuplicate
	}

	sec, err := s.file.NewSection(p.Name)
	if err != nil {
		return fmt.Errorf("failed to create preset section: %w", err)
	}
	for _, kv := range [][2]string{
		{keyStartTime, p.StartTime},
		{keyEndTime, p.EndTime},
		{keyDuration, p.Duration},
		{keyNumClip, p.NumClips},
	} {
		if _, err := sec.NewKey(kv[0], kv[1]); err != nil {
			s.file.DeleteSection(p.Name)
			return fmt.Errorf("failed to set preset %s: %w", kv[0], err)
		}
	}

	if err := s.file.SaveTo(s.path); err != nil {
		s.file.DeleteSection(p.Name)
		return fmt.Errorf("failed to write presets file: %w", err)
	}

	s.logger.Info("saved preset", "name", p.Name, "summary", p.Summary())
	return nil
}

// Load returns the preset called name. An empty name means nothing is
// selected and is reported as ErrNoSelection.
func (s *Store) Load(name string) (Preset, error) {
	if name == "" {
		return Preset{}, ErrNoSelection
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if name == ini.DefaultSection || !s.file.HasSection(name) {
		s.logger.Warn("invalid preset", "name", name)
		return Preset{}, ErrNotFound
	}
	sec, err := s.file.GetSection(name)
	if err != nil {
		return Preset{}, ErrNotFound
	}
	return fromSection(sec), nil
}

// ValidateName rejects names that cannot round-trip as an INI section header.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || name != strings.TrimSpace(name) {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "[]\r\n") || name == ini.DefaultSection {
		return ErrInvalidName
	}
	return nil
}

// Summary renders the preset the way preset pickers list it.
func (p Preset) Summary() string {
	return fmt.Sprintf("%s - Start time: %s; End time: %s; Duration: %s; No. of clips: %s",
		p.Name, p.StartTime, p.EndTime, p.Duration, p.NumClips)
}

func fromSection(sec *ini.Section) Preset {
	return Preset{
		Name:      sec.Name(),
		StartTime: sec.Key(keyStartTime).String(),
		EndTime:   sec.Key(keyEndTime).String(),
		Duration:  sec.Key(keyDuration).String(),
		NumClips:  sec.Key(keyNumClip).String(),
	}
}
