package trailer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cliptrail/cliptrail-agent/internal/history"
	"github.com/cliptrail/cliptrail-agent/internal/logging"
	"github.com/cliptrail/cliptrail-agent/internal/presets"
)

const (
	MsgRunning        = "Running"
	MsgInvalidConfig  = "Invalid configuration"
	MsgAlreadyRunning = "Trailer already running"
	MsgNotCreated     = "Trailer not created"
	MsgUploading      = "Uploading"
	MsgInvalidPreset  = "Invalid preset"
)

var (
	ErrInvalidPreset = errors.New(MsgInvalidPreset)
	ErrNoPresetStore = errors.New("preset store not configured")
)

// PresetStore is the subset of presets.Store the service relies on.
type PresetStore interface {
	List() []presets.Summary
	Save(p presets.Preset) error
	Load(name string) (presets.Preset, error)
}

// Service owns the registry, the current options and the result of the last
// validation pass. Every operation holds one lock, so a validation pass never
// overlaps a registry mutation.
type Service struct {
	registry *Registry
	store    PresetStore
	encoder  Encoder
	uploader Uploader
	renders  history.Repository
	feed     *Feed
	logger   *slog.Logger

	// bg outlives individual requests; encodes and uploads run under it.
	bg context.Context

	mu       sync.Mutex
	options  Options
	results  []Result
	busy     bool
	created  bool
	renderID string
	targets  []string
}

type ServiceConfig struct {
	Prober   Prober
	Presets  PresetStore
	Encoder  Encoder
	Uploader Uploader
	Renders  history.Repository
	Feed     *Feed
	Logger   *slog.Logger
	// Context bounds background encodes and uploads. Defaults to Background.
	Context context.Context
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	feed := cfg.Feed
	if feed == nil {
		feed = NewFeed(defaultFeedSize)
	}
	bg := cfg.Context
	if bg == nil {
		bg = context.Background()
	}
	return &Service{
		registry: NewRegistry(cfg.Prober, logger),
		store:    cfg.Presets,
		encoder:  cfg.Encoder,
		uploader: cfg.Uploader,
		renders:  cfg.Renders,
		feed:     feed,
		logger:   logger,
		bg:       bg,
	}
}

func (s *Service) Feed() *Feed {
	return s.feed
}

// Context is the agent-lifetime context background work runs under.
func (s *Service) Context() context.Context {
	return s.bg
}

// AddSources probes and registers paths. Previously validated results become
// stale and are discarded.
func (s *Service) AddSources(ctx context.Context, paths []string) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	change := s.registry.Add(ctx, paths)
	s.results = nil
	return change
}

// ReplaceSources swaps the whole registry for paths.
func (s *Service) ReplaceSources(ctx context.Context, paths []string) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	change := s.registry.ReplaceAll(ctx, paths)
	s.results = nil
	return change
}

func (s *Service) RemoveSource(path string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.registry.Remove(path)
	if ok {
		s.results = nil
	}
	return idx, ok
}

func (s *Service) ClearSources() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.registry.Clear()
	s.results = nil
	return n
}

func (s *Service) Sources() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Jobs()
}

func (s *Service) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// Results returns the last validation pass, or nil when the registry or the
// options changed since.
func (s *Service) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		return nil
	}
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// SetOptions replaces the options wholesale and validates every source.
func (s *Service) SetOptions(opts Options) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options = opts
	return s.validateLocked()
}

// Preview re-validates every source against the current options.
func (s *Service) Preview() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked()
}

func (s *Service) validateLocked() []Result {
	s.results = Validate(s.registry.Jobs(), s.options, s.logger)
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Plan validates the current state and exports it. ok is false when any
// source is invalid.
func (s *Service) Plan() (Plan, []Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planLocked()
}

func (s *Service) planLocked() (Plan, []Result, bool) {
	results := s.validateLocked()
	if !AllValid(results) {
		return Plan{}, results, false
	}
	parsed, _ := Parse(s.options)
	return Export(s.registry.Jobs(), results, parsed), results, true
}

func (s *Service) Presets() []presets.Summary {
	if s.store == nil {
		return nil
	}
	return s.store.List()
}

// SavePreset stores the current options under name. Only options that are
// valid for every registered source can be saved.
func (s *Service) SavePreset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return ErrNoPresetStore
	}
	if !AllValid(s.validateLocked()) {
		s.logger.Warn(MsgInvalidPreset, "name", name)
		return ErrInvalidPreset
	}

	return s.store.Save(presets.Preset{
		Name:      name,
		StartTime: s.options.StartTime,
		EndTime:   s.options.EndTime,
		Duration:  s.options.Duration,
		NumClips:  s.options.NumClips,
	})
}

// LoadPreset applies the named preset as the current options.
func (s *Service) LoadPreset(name string) (Options, []Result, error) {
	if s.store == nil {
		return Options{}, nil, ErrNoPresetStore
	}
	p, err := s.store.Load(name)
	if err != nil {
		return Options{}, nil, err
	}

	opts := Options{StartTime: p.StartTime, EndTime: p.EndTime, Duration: p.Duration, NumClips: p.NumClips}
	return opts, s.SetOptions(opts), nil
}

// Create validates every source and, when all are valid, starts the encoder
// in the background. The encoder's outcome arrives on the feed.
func (s *Service) Create(ctx context.Context) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return Errorf(MsgAlreadyRunning)
	}

	plan, _, ok := s.planLocked()
	if !ok {
		s.logger.Warn(MsgInvalidConfig)
		return Errorf(MsgInvalidConfig)
	}
	if s.encoder == nil {
		return Errorf("encoder not configured")
	}

	s.created = false
	s.busy = true
	s.renderID = history.NewID()
	s.targets = plan.Target

	s.recordRender(ctx, s.renderID, plan)
	s.logger.Info("trailer render started", "render_id", s.renderID, "sources", len(plan.Source))

	go s.encode(s.renderID, plan)
	return Info(MsgRunning)
}

func (s *Service) encode(renderID string, plan Plan) {
	s.finishRender(renderID, s.encoder.Encode(s.bg, plan))
}

// finishRender records the outcome of a render and publishes its terminal
// status. Busy and created flip together under the lock before the status is
// published. A render that is no longer the latest changes nothing.
func (s *Service) finishRender(renderID string, err error) {
	logger := logging.WithRenderID(s.logger, renderID)

	status, errMsg := history.StatusCompleted, ""
	msg := Info(StatusDone)
	if err != nil {
		status, errMsg = history.StatusFailed, err.Error()
		msg = Errorf("%s", err.Error())
		logger.Error("trailer render failed", "error", err)
	} else {
		logger.Info("trailer render completed")
	}

	if s.renders != nil {
		if err := s.renders.UpdateRenderStatus(context.Background(), renderID, status, errMsg); err != nil {
			logger.Warn("failed to update render", "error", err)
		}
	}

	s.mu.Lock()
	latest := s.renderID
	if renderID == latest {
		s.busy = false
		s.created = err == nil
	}
	s.mu.Unlock()

	if renderID != latest {
		logger.Warn("ignoring outcome of superseded render", "latest_render_id", latest)
		return
	}
	s.feed.Publish(msg)
}

// HandleStatus publishes a status message. A literal INFO Done marks the
// latest render as uploadable.
func (s *Service) HandleStatus(m Message) {
	if m == Info(StatusDone) {
		s.mu.Lock()
		s.created = true
		s.mu.Unlock()
	}
	s.feed.Publish(m)
}

func (s *Service) IsCreated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Targets returns the trailer paths of the latest render.
func (s *Service) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}

func (s *Service) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Upload pushes every trailer of the latest render in the background.
func (s *Service) Upload(ctx context.Context) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		return Errorf(MsgNotCreated)
	}
	if s.busy {
		return Errorf(MsgAlreadyRunning)
	}
	if s.uploader == nil {
		return Errorf("uploader not configured")
	}

	s.busy = true
	targets := append([]string(nil), s.targets...)
	go s.upload(s.renderID, targets)
	return Info(MsgUploading)
}

func (s *Service) upload(renderID string, targets []string) {
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	logger := logging.WithRenderID(s.logger, renderID)
	for _, target := range targets {
		uploadID := s.recordUpload(renderID, target)

		link, err := s.uploader.Upload(s.bg, target)
		if err != nil {
			logger.Warn("upload failed", "path", logging.SanitizePath(target), "error", err)
			s.finishUpload(uploadID, history.StatusFailed, "", err.Error())
			s.HandleStatus(Errorf("%s", err.Error()))
			return
		}

		s.finishUpload(uploadID, history.StatusCompleted, link, "")
		s.HandleStatus(Info("Uploaded to " + link))
	}
}

func (s *Service) recordRender(ctx context.Context, id string, plan Plan) {
	if s.renders == nil {
		return
	}
	planJSON, _ := json.Marshal(plan)
	now := time.Now()
	err := s.renders.CreateRender(ctx, &history.Render{
		ID:        id,
		Status:    history.StatusRunning,
		Sources:   len(plan.Source),
		Targets:   plan.Target,
		Plan:      string(planJSON),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logger.Warn("failed to record render", "render_id", id, "error", err)
	}
}

func (s *Service) recordUpload(renderID, path string) string {
	if s.renders == nil {
		return ""
	}
	now := time.Now()
	u := &history.Upload{
		ID:        history.NewID(),
		RenderID:  renderID,
		Path:      path,
		Status:    history.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.renders.CreateUpload(context.Background(), u); err != nil {
		s.logger.Warn("failed to record upload", "path", path, "error", err)
		return ""
	}
	return u.ID
}

func (s *Service) finishUpload(id, status, link, errMsg string) {
	if s.renders == nil || id == "" {
		return
	}
	if err := s.renders.UpdateUpload(context.Background(), id, status, link, errMsg); err != nil {
		s.logger.Warn("failed to update upload", "upload_id", id, "error", err)
	}
}
