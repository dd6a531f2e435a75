package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/applypilot/apply-cli/internal/model"
	"github.com/applypilot/apply-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a read-only report server over the tracker store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/applications", func(w http.ResponseWriter, req *http.Request) {
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			status := model.ApplicationStatus(req.URL.Query().Get("status"))
			if status != "" && !status.Valid() {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
				return
			}

			recs, err := st.ListRecent(req.Context(), store.ListFilter{Status: status, Limit: limit})
			if err != nil {
				zap.L().Error("list applications failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
				return
			}
			if recs == nil {
				recs = []model.TrackerRecord{}
			}
			writeJSON(w, http.StatusOK, recs)
		})

		r.Get("/api/applications/stats", func(w http.ResponseWriter, req *http.Request) {
			recs, err := st.ListRecent(req.Context(), store.ListFilter{Limit: 10000})
			if err != nil {
				zap.L().Error("stats failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
				return
			}

			s := computeStats(recs)
			byStatus := make(map[string]int, len(s.ByStatus))
			for status, n := range s.ByStatus {
				byStatus[string(status)] = n
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"total":     s.Total,
				"by_status": byStatus,
				"overrides": s.Overrides,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
