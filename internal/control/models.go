package control

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"eventscan/internal/classifier"
	"eventscan/internal/config"

	"github.com/spf13/cobra"
)

// NewModelCmd wires up the model subcommands (info/set).
func NewModelCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "model",
		Aliases: []string{"models"},
		Short:   "Inspect or select the ONNX model",
	}
	cmd.AddCommand(newModelInfoCmd(cfgPath))
	cmd.AddCommand(newModelSetCmd(cfgPath))
	return cmd
}

func newModelInfoCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show model input and output tensors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			path := cfg.Model.Path
			if len(args) == 1 {
				path = args[0]
			}
			info, err := classifier.Inspect(path, cfg.Model.RuntimeLibrary)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model: %s\n", info.Path)
			for _, t := range info.Inputs {
				fmt.Fprintf(out, "input:  %s\n", t)
			}
			for _, t := range info.Outputs {
				fmt.Fprintf(out, "output: %s\n", t)
			}
			inName, outName, err := info.ResolveNames(cfg.Model.InputName, cfg.Model.OutputName)
			if err != nil {
				fmt.Fprintf(out, "warning: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "binds: %s -> %s\n", inName, outName)
			if in, ok := info.Input(inName); ok {
				if frames := in.StaticFrames(); frames > 0 {
					fmt.Fprintf(out, "window frames: %d (fixed by the model)\n", frames)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newModelSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <path>",
		Short: "Set model.path in config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			val, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(val); err != nil {
				return fmt.Errorf("%w: %s", classifier.ErrModelNotFound, val)
			}
			cfg.Model.Path = val
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model set to %s\n", val)
			return nil
		},
	}
}
