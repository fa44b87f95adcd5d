package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/getlantern/systray"

	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

//go:embed assets/icon.png
var iconBytes []byte

const (
	maxStatusRunes = 60

	// Sources can change through the API without a status message.
	sourcesRefreshInterval = 2 * time.Second
)

// menuItem is the part of *systray.MenuItem the tray updates.
type menuItem interface {
	SetTitle(title string)
	Enable()
	Disable()
}

type Tray struct {
	service *trailer.Service
	logger  *slog.Logger

	statusItem  menuItem
	sourcesItem menuItem
	uploadItem  menuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Service *trailer.Service
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tray{
		service: cfg.Service,
		logger:  logger,
		onQuit:  cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Cliptrail")
	systray.SetTooltip("Cliptrail Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Last status message")
	t.statusItem.Disable()

	t.sourcesItem = systray.AddMenuItem(sourcesTitle(0), "Registered source videos")
	t.sourcesItem.Disable()

	systray.AddSeparator()

	previewItem := systray.AddMenuItem("Preview", "Validate every source against the current options")
	createItem := systray.AddMenuItem("Create Trailer", "Encode a trailer for every source")
	uploadItem := systray.AddMenuItem("Upload", "Upload the latest trailers")
	t.uploadItem = uploadItem
	t.refresh()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Cliptrail Agent")

	feed, cancel := t.service.Feed().Subscribe()
	go t.watch(feed)

	go func() {
		for {
			select {
			case <-previewItem.ClickedCh:
				t.handlePreview()
			case <-createItem.ClickedCh:
				t.handleMessage(t.service.Create(t.service.Context()))
			case <-uploadItem.ClickedCh:
				t.handleMessage(t.service.Upload(t.service.Context()))
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				cancel()
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// watch mirrors the status feed into the menu until the feed is closed, and
// refreshes the source count in between.
func (t *Tray) watch(feed <-chan trailer.Message) {
	ticker := time.NewTicker(sourcesRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-feed:
			if !ok {
				return
			}
			t.UpdateStatus(m)
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) handlePreview() {
	results := t.service.Preview()
	t.refresh()
	t.setStatus(previewTitle(results))
}

// handleMessage shows the immediate reply to a Create or Upload click. The
// terminal outcome arrives later on the feed.
func (t *Tray) handleMessage(m trailer.Message) {
	if m.IsError() {
		t.logger.Warn("tray action refused", "message", m.String())
	}
	t.UpdateStatus(m)
}

// UpdateStatus shows m and resyncs the rest of the menu with the service.
// Upload stays enabled only while the latest render is created, so a new
// Create or a failed render disables it again.
func (t *Tray) UpdateStatus(m trailer.Message) {
	t.setStatus(statusTitle(m))
	t.refresh()
}

// refresh syncs the source count and the Upload item with the service.
func (t *Tray) refresh() {
	count := len(t.service.Sources())
	created := t.service.IsCreated()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sourcesItem.SetTitle(sourcesTitle(count))
	if created {
		t.uploadItem.Enable()
	} else {
		t.uploadItem.Disable()
	}
}

func (t *Tray) setStatus(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(title)
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusTitle(m trailer.Message) string {
	return "Status: " + truncateRunes(m.String(), maxStatusRunes)
}

func sourcesTitle(count int) string {
	return fmt.Sprintf("Sources: %d", count)
}

func previewTitle(results []trailer.Result) string {
	if len(results) == 1 && results[0].IsBatch() {
		return statusTitle(trailer.Errorf("%s", results[0].Message))
	}
	valid := 0
	for _, r := range results {
		if r.Valid {
			valid++
		}
	}
	return fmt.Sprintf("Preview: %d/%d valid", valid, len(results))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
