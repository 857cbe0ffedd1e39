package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/diegolsarmond/jus-connect/internal/api"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the HTTP API server",
	GroupID: "server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.ListenAddr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg)
		if err != nil {
			slog.Error("open store", "err", err)
			return err
		}
		defer st.Close()

		srv, err := api.NewServer(cfg, st)
		if err != nil {
			slog.Error("create server", "err", err)
			return err
		}
		if err := srv.Start(); err != nil {
			slog.Error("start server", "err", err)
			return err
		}
		slog.Info("server started", "addr", cfg.ListenAddr, "driver", cfg.DB.Driver, "version", version)

		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "err", err)
			return err
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Create the schema and apply pending migrations",
	GroupID: "server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Opening the store runs the migrations.
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		slog.Info("schema up to date", "version", st.SchemaVersion(cmd.Context()), "driver", cfg.DB.Driver)
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "override the listen address")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
