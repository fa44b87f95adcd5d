package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/cliptrail/cliptrail-agent/internal/timecode"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

const DefaultFrameRate = 30.0

// PlanClips expands a plan into its sub-clips, source by source in plan order.
func PlanClips(plan trailer.Plan) []ResolvedClip {
	clips := make([]ResolvedClip, 0, len(plan.Source)*int(plan.NumClips))
	for i, src := range plan.Source {
		for k, start := range plan.ClipStarts(i) {
			clips = append(clips, ResolvedClip{
				ClipName:  ClipName(src, k, start),
				MediaPath: src,
				StartMs:   start * 1000,
				EndMs:     (start + plan.Duration) * 1000,
			})
		}
	}
	return clips
}

// PlanEDL renders the plan as one CMX3600 event per sub-clip.
func PlanEDL(plan trailer.Plan, title string, frameRate float64) string {
	return GenerateEDL(PlanClips(plan), title, frameRate)
}

func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int64(math.Round(frameRate))
	if fps <= 0 {
		fps = int64(DefaultFrameRate)
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	var recordOffsetMs int64
	for i, clip := range clips {
		durationMs := clip.EndMs - clip.StartMs
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				msToTimecode(clip.StartMs, fps),
				msToTimecode(clip.EndMs, fps),
				msToTimecode(recordOffsetMs, fps),
				msToTimecode(recordOffsetMs+durationMs, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clip.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath),
		)
		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms, fps int64) string {
	totalFrames := int64(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	return fmt.Sprintf("%s:%02d", timecode.FormatSeconds(totalSeconds), frames)
}
