package control

import (
	"fmt"
	"os"
	"strings"

	"eventscan/internal/config"
	"eventscan/internal/service"

	"github.com/spf13/cobra"
)

// NewServiceCmd manages the user-level service definition.
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the launchd (macOS) or systemd user service",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write the user service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env := make(map[string]string)
			for _, p := range envPairs {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("bad env %q, want KEY=VAL", p)
				}
				env[k] = v
			}
			kind := service.DefaultKind()
			path, err := service.Write(kind, service.Params{
				Label:  service.Label,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s definition written: %s\n", kind, path)
			if kind == service.Launchd {
				fmt.Fprintln(out, "Load:   launchctl load -w", path)
				fmt.Fprintf(out, "Stop:   launchctl bootout gui/$(id -u)/%s\n", service.Label)
			} else {
				fmt.Fprintf(out, "Enable: systemctl --user enable --now %s.service\n", service.Label)
				fmt.Fprintf(out, "Stop:   systemctl --user stop %s.service\n", service.Label)
			}
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set for the service (KEY=VAL)")
	return cmd
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the user service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := service.Remove(service.DefaultKind(), service.Label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s (if present); stop the running service with your service manager\n", path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service definition path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := service.Status(service.DefaultKind(), service.Label)
			fmt.Fprintf(cmd.OutOrStdout(), "definition: %s\n", path)
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "status: present")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "status: missing (install via: eventscan service install)")
			}
			return nil
		},
	}
}
