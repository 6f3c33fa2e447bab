package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
	"github.com/tradecraft-foods/reconcile-cli/internal/review"
	"github.com/tradecraft-foods/reconcile-cli/internal/store"
	"github.com/tradecraft-foods/reconcile-cli/pkg/graphstore"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review queue HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/reviews", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			minScore, _ := strconv.ParseFloat(q.Get("min_score"), 64)
			limit, _ := strconv.Atoi(q.Get("limit"))
			offset, _ := strconv.Atoi(q.Get("offset"))

			items, err := e.Reviews.List(req.Context(), store.ReviewFilter{
				Status:     model.ReviewStatus(q.Get("status")),
				Type:       model.EntityType(q.Get("type")),
				Search:     q.Get("search"),
				MinScore:   minScore,
				SourceFile: q.Get("source_file"),
				Limit:      limit,
				Offset:     offset,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			if items == nil {
				items = []model.ReviewItem{}
			}
			writeJSON(w, http.StatusOK, items)
		})

		r.Get("/reviews/{id}", func(w http.ResponseWriter, req *http.Request) {
			item, err := e.Reviews.Get(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		})

		r.Post("/reviews/{id}/decision", func(w http.ResponseWriter, req *http.Request) {
			var dec model.Decision
			if err := json.NewDecoder(req.Body).Decode(&dec); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			item, err := e.Reviews.Apply(req.Context(), chi.URLParam(req, "id"), dec)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		})

		r.Post("/reviews/batch-approve", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				MinScore  float64 `json:"min_score"`
				DecidedBy string  `json:"decided_by"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			results, err := e.Reviews.BatchApprove(req.Context(), body.MinScore, body.DecidedBy)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, results)
		})

		r.Get("/ingestions/{id}", func(w http.ResponseWriter, req *http.Request) {
			ing, err := e.Store.GetIngestion(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, ing)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// writeError maps domain errors onto HTTP statuses: missing records are 404,
// decisions on already-decided items are 409, rejected decisions are 400,
// graph store trouble is 502, and anything unrecognized is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, review.ErrInvalidDecision):
		status = http.StatusBadRequest
	case graphstore.IsUnavailable(err):
		status = http.StatusBadGateway
	default:
		var reqErr *graphstore.RequestError
		if errors.As(err, &reqErr) {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
