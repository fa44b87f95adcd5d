package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cliptrail/cliptrail-agent/internal/config"
	"github.com/cliptrail/cliptrail-agent/internal/export"
	"github.com/cliptrail/cliptrail-agent/internal/logging"
	"github.com/cliptrail/cliptrail-agent/internal/media"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

var planFlags struct {
	opts      trailer.Options
	format    string
	title     string
	frameRate float64
}

var planCmd = &cobra.Command{
	Use:   "plan <video-file>...",
	Short: "Validate trailer options against source videos and print the plan",
	Long: `Probe every source video, validate the trailer options against each one
and print the extraction plan. Results go to stderr, the plan to stdout, so
the plan can be piped into other tools.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(planFlags.format)
		if err != nil {
			return err
		}

		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := logging.NewLoggerTo(cmd.ErrOrStderr(), "error")
		prober := media.NewFFprobe(cfg.FFprobePath(), logger)

		return runPlan(cmd.Context(), prober, args, planFlags.opts, format,
			planFlags.title, planFlags.frameRate, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	},
}

func init() {
	addOptionFlags(planCmd, &planFlags.opts)
	planCmd.Flags().StringVarP(&planFlags.format, "format", "f", "json", "plan format: json, yaml or edl")
	planCmd.Flags().StringVar(&planFlags.title, "title", "cliptrail", "EDL title")
	planCmd.Flags().Float64Var(&planFlags.frameRate, "fps", export.DefaultFrameRate, "EDL frame rate")
}

// addOptionFlags binds the four trailer options as flags on cmd.
func addOptionFlags(cmd *cobra.Command, opts *trailer.Options) {
	cmd.Flags().StringVarP(&opts.StartTime, "start", "s", "00:00:00", "start time (HH:MM:SS)")
	cmd.Flags().StringVarP(&opts.EndTime, "end", "e", "", "end time (HH:MM:SS), empty for each video's length")
	cmd.Flags().StringVarP(&opts.Duration, "duration", "d", "", "clip duration in seconds")
	cmd.Flags().StringVarP(&opts.NumClips, "clips", "n", "", "number of clips per trailer")
}

func runPlan(ctx context.Context, prober trailer.Prober, paths []string, opts trailer.Options,
	format export.Format, title string, frameRate float64, out, errOut io.Writer, logger *slog.Logger) error {
	registry := trailer.NewRegistry(prober, logger)
	change := registry.Add(ctx, paths)
	fmt.Fprint(errOut, renderDropped(change.Dropped))

	jobs := registry.Jobs()
	results := trailer.Validate(jobs, opts, logger)
	fmt.Fprint(errOut, renderResults(jobs, results))

	if !trailer.AllValid(results) {
		return errors.New(trailer.MsgInvalidConfig)
	}

	parsed, _ := trailer.Parse(opts)
	plan := trailer.Export(jobs, results, parsed)
	return export.Write(out, plan, format, title, frameRate)
}
