package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/antonkrylov/simrelay/internal/simulator"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Print local diagnostic information for troubleshooting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			exe, _ := os.Executable()
			exe = strings.TrimSpace(exe)
			look, _ := exec.LookPath("simrelay")
			look = strings.TrimSpace(look)

			fmt.Fprintf(out, "simrelay_version=%s\n", version)
			fmt.Fprintf(out, "simrelay_executable=%s\n", exe)
			if look != "" {
				fmt.Fprintf(out, "simrelay_on_path=%s\n", look)
			}
			if exe != "" && look != "" {
				absExe, _ := filepath.EvalSymlinks(exe)
				absLook, _ := filepath.EvalSymlinks(look)
				if absExe != "" && absLook != "" && absExe != absLook {
					fmt.Fprintln(out, "warning=you_are_not_running_the_same_simrelay_as_on_PATH (adjust PATH or call the intended binary explicitly)")
				}
			}
			fmt.Fprintf(out, "stdin_terminal=%t\n", term.IsTerminal(int(os.Stdin.Fd())))

			settings, _, err := root.resolve(cmd, nil)
			if err != nil {
				fmt.Fprintf(out, "config_error=%s\n", err.Error())
				return nil
			}
			fmt.Fprintf(out, "config_path=%s\n", settings.ConfigPath)
			fmt.Fprintf(out, "config_present=%t\n", settings.ConfigLoaded)
			fmt.Fprintf(out, "log_level=%s log_json=%t\n", settings.LogLevel, settings.LogJSON)
			fmt.Fprintf(out, "relay_port=%d ipv4=%t ipv6=%t bind_policy=%s max_line_bytes=%d\n",
				settings.Socket.Port, settings.Socket.IPv4, settings.Socket.IPv6,
				settings.Socket.BindPolicy, settings.Socket.MaxLineBytes)
			if settings.Audit.NATSURL != "" {
				fmt.Fprintf(out, "nats_url=%s subject=%s\n", settings.Audit.NATSURL, settings.Audit.Subject)
			}
			if settings.Audit.Transcript != "" {
				fmt.Fprintf(out, "transcript=%s\n", settings.Audit.Transcript)
			}
			if settings.HealthListen != "" {
				fmt.Fprintf(out, "health_listen=%s\n", settings.HealthListen)
			}

			fmt.Fprintf(out, "device_set=%s\n", settings.DeviceSet)
			_, statErr := os.Stat(settings.DeviceSet)
			fmt.Fprintf(out, "device_set_present=%t\n", statErr == nil)
			pool, err := simulator.LoadPool(settings.DeviceSet)
			if err != nil {
				fmt.Fprintf(out, "device_set_error=%s\n", err.Error())
				return nil
			}
			for _, s := range pool.All() {
				logPath, _ := pool.SystemLog(s)
				fmt.Fprintf(out, "simulator=%q os=%q system_log=%s\n", s.String(), s.OSVersion, logPath)
			}
			return nil
		},
	}
}
