package export

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

func WriteJSON(w io.Writer, plan trailer.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func WriteYAML(w io.Writer, plan trailer.Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// Write renders plan in format. title and frameRate only apply to EDL.
func Write(w io.Writer, plan trailer.Plan, format Format, title string, frameRate float64) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, plan)
	case FormatYAML:
		return WriteYAML(w, plan)
	case FormatEDL:
		_, err := io.WriteString(w, PlanEDL(plan, title, frameRate))
		return err
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
