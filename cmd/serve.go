package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/model"
	"github.com/sells-group/refine-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for refinement requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := buildServeMux(ctx, env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
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

// buildServeMux wires the HTTP routes. Split out for handler tests.
func buildServeMux(ctx context.Context, env *refineEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /refine", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ticker   string          `json:"ticker"`
			Artifact *model.Artifact `json:"artifact,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		artifact := req.Artifact
		if artifact == nil {
			if req.Ticker == "" {
				http.Error(w, `{"error":"ticker or artifact is required"}`, http.StatusBadRequest)
				return
			}
			draft, err := env.Store.GetDraft(r.Context(), req.Ticker)
			if err != nil {
				http.Error(w, `{"error":"draft lookup failed"}`, http.StatusInternalServerError)
				return
			}
			if draft == nil {
				http.Error(w, `{"error":"no draft for ticker"}`, http.StatusNotFound)
				return
			}
			artifact = draft
		}
		if artifact.Ticker == "" {
			artifact.Ticker = req.Ticker
		}

		// Refine asynchronously; the caller polls /artifacts for the result.
		go func() {
			final, err := refineArtifact(ctx, env, artifact)
			if err != nil {
				zap.L().Error("async refinement failed",
					zap.String("ticker", artifact.Ticker),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("async refinement complete",
				zap.String("ticker", artifact.Ticker),
				zap.Bool("approved", final.Approved),
				zap.Int("final_score", final.FinalScore),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "accepted",
			"ticker": artifact.Ticker,
		})
	})

	mux.HandleFunc("GET /runs", func(w http.ResponseWriter, r *http.Request) {
		filter := store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
			Ticker: r.URL.Query().Get("ticker"),
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
				return
			}
			filter.Limit = limit
		}

		runs, err := env.Store.ListRuns(r.Context(), filter)
		if err != nil {
			http.Error(w, `{"error":"run lookup failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	})

	mux.HandleFunc("GET /artifacts/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		ticker := r.PathValue("ticker")
		final, err := env.Store.LatestArtifact(r.Context(), ticker)
		if err != nil {
			http.Error(w, `{"error":"artifact lookup failed"}`, http.StatusInternalServerError)
			return
		}
		if final == nil {
			http.Error(w, `{"error":"no artifact for ticker"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(final)
	})

	return mux
}
