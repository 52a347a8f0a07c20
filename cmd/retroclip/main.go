package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/retroclip/internal/config"
	"github.com/kikiluvv/retroclip/internal/effects"
	"github.com/kikiluvv/retroclip/internal/encoder"
	"github.com/kikiluvv/retroclip/internal/logging"
	"github.com/kikiluvv/retroclip/internal/overlay"
	"github.com/kikiluvv/retroclip/internal/state"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "retroclip",
	Short: "retroclip - retro video filters with title and timestamp overlays",
	Long:  "Preview a clip with a VHS, Super-8, camcorder, 8mm or 16mm look, place a title and a date stamp, and export the result.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		var envFiles []string
		if envFile != "" {
			envFiles = append(envFiles, envFile)
		}
		if err := cfg.ApplyEnv(envFiles...); err != nil {
			return fmt.Errorf("load env: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if !verbose {
			if err := logging.SetLevel(cfg.LogLevel); err != nil {
				return err
			}
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default: ./.env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(stillCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(configCmd)
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List filters, overlay positions, timestamp formats and encoders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		a := newApp(cmd.Context())

		fmt.Fprintln(out, "Filters:")
		fmt.Fprintf(out, "  %-10s %s\n", state.FilterNone, "no treatment")
		for _, r := range effects.Recipes() {
			fmt.Fprintf(out, "  %-10s %s (%d steps)\n", r.Filter, r.Description, len(r.Steps))
		}

		fmt.Fprintln(out, "Positions:")
		for _, name := range a.positions.List() {
			pos, _ := a.positions.Get(name)
			fmt.Fprintf(out, "  %-14s %.2f, %.2f\n", name, pos.X, pos.Y)
		}

		sample := time.Date(1994, time.July, 4, 15, 30, 0, 0, time.Local)
		fmt.Fprintln(out, "Timestamp formats:")
		for _, f := range state.TimestampFormats {
			fmt.Fprintf(out, "  %-10s %s\n", f, overlay.FormatTime(sample, f))
		}

		fmt.Fprintln(out, "Encoders:")
		chosen := encoder.Negotiate(cmd.Context(), a.logger, a.prober(), encoder.Select(a.cfg.Export.Encoders))
		for _, c := range encoder.DefaultCandidates {
			mark := " "
			if chosen.Available && chosen.Config.Name == c.Name {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-10s %s\n", mark, c.Name, c.MIME)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.FromContext(cmd.Context()).Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("Config written")
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
