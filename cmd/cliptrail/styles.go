package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/cliptrail/cliptrail-agent/internal/presets"
	"github.com/cliptrail/cliptrail-agent/internal/timecode"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

var (
	green  = lipgloss.Color("#3FA34D")
	red    = lipgloss.Color("#AC3835")
	amber  = lipgloss.Color("#CC8B3F")
	cyan   = lipgloss.Color("#3097C6")
	subtle = lipgloss.Color("#8A8A8A")

	okStyle     = lipgloss.NewStyle().Foreground(green).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(red).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(amber)
	titleStyle  = lipgloss.NewStyle().Foreground(cyan).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(subtle)
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cyan).
			Padding(0, 2)
)

func renderBanner(version string, port int, token string) string {
	lines := []string{
		titleStyle.Render("CLIPTRAIL AGENT v" + version),
		"",
		fmt.Sprintf("API URL:    http://127.0.0.1:%d", port),
		fmt.Sprintf("Auth Token: %s", token),
	}
	return bannerStyle.Render(strings.Join(lines, "\n"))
}

// renderResults lists one line per source in registry order. A batch failure
// renders as a single line.
func renderResults(jobs []trailer.Job, results []trailer.Result) string {
	var b strings.Builder
	for _, r := range results {
		if r.IsBatch() {
			b.WriteString(errorStyle.Render("✗ "+r.Message) + "\n")
			continue
		}

		label := r.SourcePath
		if r.Index >= 0 && r.Index < len(jobs) {
			label = fmt.Sprintf("%s %s", jobs[r.Index].SourcePath,
				dimStyle.Render("("+timecode.FormatSeconds(jobs[r.Index].LengthSeconds)+")"))
		}
		if r.Valid {
			b.WriteString(okStyle.Render("✓ ") + label + "\n  " + r.Message + "\n")
		} else {
			b.WriteString(errorStyle.Render("✗ ") + label + "\n  " + errorStyle.Render(r.Message) + "\n")
		}
	}
	return b.String()
}

func renderDropped(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(warnStyle.Render("! skipped "+p+": not a playable video") + "\n")
	}
	return b.String()
}

func renderPresets(list []presets.Summary) string {
	if len(list) == 0 {
		return dimStyle.Render("no presets saved") + "\n"
	}
	var b strings.Builder
	for _, s := range list {
		b.WriteString(titleStyle.Render(s.Name) + "  " + s.Text + "\n")
	}
	return b.String()
}

func formTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Title = lipgloss.NewStyle().Foreground(cyan).Bold(true)
	t.Focused.Description = dimStyle
	t.Focused.ErrorIndicator = errorStyle
	t.Focused.ErrorMessage = lipgloss.NewStyle().Foreground(red)
	return t
}
