package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

const (
	DefaultPlanName = "cliptrail_plan"

	maxPlanNameRunes = 120
	maxClipNameRunes = 160
)

var (
	ErrNoOutputDir       = errors.New("output_dir is required")
	ErrOutputDirRelative = errors.New("output_dir must be an absolute path")
	ErrOutputDirUnclean  = errors.New("output_dir must be a clean path")
	ErrOutputDirMissing  = errors.New("output_dir does not exist")
	ErrOutputDirNotADir  = errors.New("output_dir is not a directory")
)

// ClipName labels sub-clip k (zero-based) of source: the source file name,
// the one-based clip number and the clip's offset into the source.
func ClipName(source string, k int, start int64) string {
	return cleanName(fmt.Sprintf("%s (clip %d, %ds)", filepath.Base(source), k+1, start), maxClipNameRunes)
}

// PlanName picks the base name of an exported plan. A project name that
// cleans to nothing falls back to "<first source stem>_trailer", then to
// DefaultPlanName.
func PlanName(project string, plan trailer.Plan) string {
	if name := cleanName(project, maxPlanNameRunes); name != "" {
		return name
	}
	if len(plan.Source) > 0 {
		if stem := cleanName(sourceStem(plan.Source[0]), maxPlanNameRunes-len("_trailer")); stem != "" {
			return stem + "_trailer"
		}
	}
	return DefaultPlanName
}

func sourceStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// cleanName keeps letters, digits and " -_.,()", collapses every other run
// of runes into one underscore and drops control characters. Leading and
// trailing dots, spaces and underscores are trimmed so the result can never
// name a parent or hidden file.
func cleanName(s string, maxRunes int) string {
	var b strings.Builder
	replaced := false
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
		case unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" -_.,()", r):
			b.WriteRune(r)
			replaced = false
		case !replaced:
			b.WriteRune('_')
			replaced = true
		}
	}

	name := strings.Trim(b.String(), " ._")
	if runes := []rune(name); maxRunes > 0 && len(runes) > maxRunes {
		name = strings.TrimRight(string(runes[:maxRunes]), " ._")
	}
	return name
}

// ValidateOutputDir checks that dir is an existing, absolute, clean directory.
// The agent's working directory means nothing to a caller, so relative paths
// are refused.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return ErrNoOutputDir
	}
	if !filepath.IsAbs(dir) {
		return ErrOutputDirRelative
	}
	if filepath.Clean(dir) != dir {
		return ErrOutputDirUnclean
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrOutputDirMissing
		}
		return fmt.Errorf("invalid output_dir: %w", err)
	}
	if !info.IsDir() {
		return ErrOutputDirNotADir
	}
	return nil
}
