package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskboard/internal/logging"
	"github.com/mschirtzinger/taskboard/internal/server"
	"github.com/mschirtzinger/taskboard/internal/store"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run the taskboard backend over HTTP",
	Long: `Serve the embedded store over HTTP so other machines can use it with
--remote.

Endpoints:
  /auth/v1/...     sign up, log in, log out, current user
  /rest/v1/...     projects and tasks of the logged-in user
  /realtime/v1     WebSocket feed of row changes
  /health          health check

Example usage:
  taskboard serve                        # listen on server.addr
  taskboard serve --addr 0.0.0.0:8787    # listen on all interfaces`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		logs := logging.NewFactory(cfg.Log)
		defer logs.Close()

		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.InitSchemaContext(cmd.Context()); err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}

		srv := server.New(db, &server.Config{
			Addr:   cfg.Server.Addr,
			Logger: logs.Logger("server"),
		})
		if err := srv.Start(); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Serving %s on %s\n", renderPass("✓"), cfg.Store.Path, renderAccent(srv.URL()))
		fmt.Fprintf(w, "   Health check: %s/health\n", srv.URL())
		fmt.Fprintf(w, "   Clients:      taskboard --remote %s\n", srv.URL())
		fmt.Fprintln(w, "\nPress Ctrl+C to stop...")

		<-cmd.Context().Done()

		fmt.Fprintln(w, "\nShutting down...")
		if err := srv.Stop(); err != nil {
			return err
		}
		fmt.Fprintln(w, "Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	rootCmd.AddCommand(serveCmd)
}
