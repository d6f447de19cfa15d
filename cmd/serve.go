package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server that triggers processing runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// One run at a time; overlapping triggers are rejected rather
		// than queued.
		var running atomic.Bool

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		mux.HandleFunc("POST /webhook/process", func(w http.ResponseWriter, r *http.Request) {
			if !running.CompareAndSwap(false, true) {
				http.Error(w, `{"error":"a run is already in progress"}`, http.StatusConflict)
				return
			}

			go func() {
				defer running.Store(false)

				env, err := initPipeline(ctx)
				if err != nil {
					zap.L().Error("webhook run init failed", zap.Error(err))
					return
				}
				defer env.Close()

				summary, err := env.Coordinator.Execute(ctx)
				if err != nil {
					zap.L().Error("webhook run failed", zap.Error(err))
					return
				}
				counts := summary.Counts()
				zap.L().Info("webhook run complete",
					zap.String("runID", summary.RunID),
					zap.Int("committed", counts.Committed),
					zap.Int("rowsWritten", counts.RowsWritten))
			}()

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
