package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/cliptrail/cliptrail-agent/internal/config"
	"github.com/cliptrail/cliptrail-agent/internal/logging"
	"github.com/cliptrail/cliptrail-agent/internal/presets"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
)

var presetSaveOpts trailer.Options

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage saved trailer option presets",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openPresetStore()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderPresets(store.List()))
		return nil
	},
}

var presetsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the options stored in a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openPresetStore()
		if err != nil {
			return err
		}
		p, err := store.Load(args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		printPreset(cmd.OutOrStdout(), p)
		return nil
	},
}

var presetsSaveCmd = &cobra.Command{
	Use:   "save [name]",
	Short: "Save trailer options as a named preset",
	Long: `Save the given options under a name. The options must parse; they are
checked against sources only when the preset is applied. Without a name an
interactive prompt asks for one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, msg := trailer.Parse(presetSaveOpts); msg != "" {
			return fmt.Errorf("%s: %s", trailer.MsgInvalidPreset, msg)
		}

		store, err := openPresetStore()
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		} else if name, err = promptPresetName(store); err != nil {
			return err
		}

		p := presets.Preset{
			Name:      name,
			StartTime: presetSaveOpts.StartTime,
			EndTime:   presetSaveOpts.EndTime,
			Duration:  presetSaveOpts.Duration,
			NumClips:  presetSaveOpts.NumClips,
		}
		if err := store.Save(p); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("saved")+" "+p.Summary())
		return nil
	},
}

func init() {
	addOptionFlags(presetsSaveCmd, &presetSaveOpts)
	presetsCmd.AddCommand(presetsListCmd, presetsShowCmd, presetsSaveCmd)
}

func openPresetStore() (*presets.Store, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return presets.Open(cfg.PresetsPath(), logging.NewLogger("error"))
}

func promptPresetName(store *presets.Store) (string, error) {
	existing := make(map[string]bool)
	for _, s := range store.List() {
		existing[s.Name] = true
	}

	var name string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Preset name").
				Description("Letters, digits and spaces; no brackets").
				Value(&name).
				Validate(func(s string) error {
					return checkNewPresetName(s, existing)
				}),
		),
	).WithTheme(formTheme())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errors.New("cancelled")
		}
		return "", err
	}
	return name, nil
}

func checkNewPresetName(name string, existing map[string]bool) error {
	if err := presets.ValidateName(name); err != nil {
		return err
	}
	if existing[name] {
		return presets.ErrDuplicate
	}
	return nil
}

func printPreset(w io.Writer, p presets.Preset) {
	end := p.EndTime
	if end == "" {
		end = dimStyle.Render("(video length)")
	}
	fmt.Fprintln(w, titleStyle.Render(p.Name))
	fmt.Fprintf(w, "  start:    %s\n", p.StartTime)
	fmt.Fprintf(w, "  end:      %s\n", end)
	fmt.Fprintf(w, "  duration: %s\n", p.Duration)
	fmt.Fprintf(w, "  clips:    %s\n", p.NumClips)
}
