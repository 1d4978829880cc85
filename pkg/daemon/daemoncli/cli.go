// Package daemoncli is the cobra command tree of the hhd daemon.
package daemoncli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/antheas/hhd/pkg/daemon"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "hhd"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type daemonProvider func() *daemon.Daemon

func NewRootCmd(configDir string) *cobra.Command {
	cfg := daemon.Config{
		DataDir:          filepath.Join(configDir, "data"),
		ControllerConfig: filepath.Join(configDir, "controller.yml"),
	}
	rootCmd := &cobra.Command{
		Use:   "hhd",
		Short: "Handheld Daemon",
		Long:  `hhd emulates a DualSense controller on top of the Legion Go controllers.`,
	}
	var d *daemon.Daemon
	provider := func() *daemon.Daemon {
		return d
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&cfg.ControllerConfig, "controller-config", cfg.ControllerConfig, "controller config file")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		d, err = daemon.NewDaemon(cfg)
		return err
	}
	rootCmd.AddCommand(NewRun(provider))
	rootCmd.AddCommand(NewListDevices(provider))
	rootCmd.AddCommand(NewMonitor(provider))
	return rootCmd
}

func NewRun(d daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		Long:  `Watches for supported controllers and emulates a DualSense while one is connected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer d().Close()
			return d().Run(cmd.Context())
		},
	}
}

func NewMonitor(d daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Watch for controllers",
		Long:  `Print controller connection changes until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer d().Close()
			return d().Monitor(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func NewListDevices(d daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List known controllers",
		Long:  `List controllers that are connected or have been seen before.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer d().Close()
			devices, err := d().ListDevices()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(devices, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}
