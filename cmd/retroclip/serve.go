package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kikiluvv/retroclip/internal/gui"
	"github.com/kikiluvv/retroclip/internal/media"
	"github.com/kikiluvv/retroclip/internal/server"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP export API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cmd.Context())
		cfg := a.cfg

		opts := a.exportOptions()
		// Uploads are exported as fast as they decode.
		opts.Realtime = false

		deps := a.exportDeps()
		deps.Downloader = nil

		srv := server.New(a.logger, server.Deps{
			Open: func(ctx context.Context, path string) (server.Media, error) {
				src, err := a.open(ctx, path, media.ClockStepped)
				if err != nil {
					return nil, err
				}
				return src, nil
			},
			Export: deps,
		}, server.Options{
			UploadDir:       cfg.Server.UploadDir,
			MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Export:          opts,
			EditorDefaults:  a.editorDefaults,
		})

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx, addr)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Open the preview editor window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cmd.Context())
		cfg := a.cfg

		// The window plays on the wall clock, so exports follow it.
		opts := a.exportOptions()
		opts.Realtime = true

		return gui.Run(cmd.Context(), a.logger, gui.Options{
			Open: func(ctx context.Context, path string) (gui.Media, error) {
				src, err := a.open(ctx, path, media.ClockRealtime)
				if err != nil {
					return nil, err
				}
				return src, nil
			},
			Export:          a.exportDeps(),
			ExportOptions:   opts,
			OutputDir:       cfg.Export.OutputDir,
			Defaults:        a.editorDefaults,
			PreviewMaxWidth: cfg.Preview.MaxWidth,
			FPS:             int(cfg.Preview.FPS),
		})
	},
}
