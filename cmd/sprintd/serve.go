package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scullers68/sprint-reports/internal/audit"
	"github.com/scullers68/sprint-reports/internal/authz"
	"github.com/scullers68/sprint-reports/internal/portfolio"
	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
	"github.com/scullers68/sprint-reports/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook ingress, worker pool, and report API",
	Long: `Start the long-running service: the webhook ingress endpoint, the
worker pool that processes queued events, and the authenticated report
API. Shuts down gracefully on SIGINT/SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.WebhookListenAddr
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		client := newTrackerClient()
		log := newAuditLog()
		mapper := newMapper()
		engine := newSyncEngine(client, log)

		if cfg.TemplateFile != "" {
			if _, err := mapper.LoadTemplateFile(rootCtx, cfg.TemplateFile, getActor()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: load template %s: %v\n", cfg.TemplateFile, err)
				os.Exit(1)
			}
		}

		queue := make(chan int64, cfg.QueueSize)
		ingestor := webhook.NewIngestor(store, queue, cfg.WebhookSecret, log)
		pool := webhook.NewPool(store, queue, cfg.WorkerPoolSize, mapper,
			webhook.WithSyncTrigger(engine),
			webhook.WithPoolEventSink(log),
			webhook.WithAlertHandler(func(msg string) {
				logger.Warn("webhook alert", "message", msg)
			}),
		)

		api := &apiServer{
			store:      store,
			log:        log,
			authorizer: authz.New(store, log),
			portfolio:  newPortfolio(client),
		}
		if cfg.SSOSecret != "" {
			api.sso = authz.NewSSOValidator(cfg.SSOSecret, cfg.AllowedSSODomains)
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/webhooks/tracker", ingestor.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		})
		mux.Handle("/", api.authenticated(http.HandlerFunc(api.route)))

		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(rootCtx)
		g.Go(func() error { return pool.Run(ctx) })
		g.Go(func() error {
			logger.Info("sprintd listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// apiServer serves the authenticated read API. Every request passes the
// authorization gate; ungated paths fall through with no permission
// required.
type apiServer struct {
	store      storage.Storage
	log        *audit.Log
	authorizer *authz.Authorizer
	sso        *authz.SSOValidator
	portfolio  *portfolio.Aggregator
}

// authenticated resolves the caller and enforces the permission table.
// With SSO configured the bearer token is validated and its subject is
// the user id; without it the X-User-ID header is trusted (local and
// test deployments only).
func (s *apiServer) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID string
		if s.sso != nil {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			claims, err := s.sso.Validate(raw)
			if err != nil {
				s.log.Authentication(r.Context(), types.EventAuthentication,
					"", "", r.RemoteAddr, false, "sso validation failed")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			userID = claims.Subject
			if userID == "" {
				userID = claims.Email
			}
			s.log.Authentication(r.Context(), types.EventAuthentication,
				userID, claims.Email, r.RemoteAddr, true, "sso token accepted")
		} else {
			userID = r.Header.Get("X-User-ID")
		}
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := s.authorizer.Authorize(r.Context(), userID, r.URL.Path, r.Method, ""); err != nil {
			switch {
			case errors.Is(err, authz.ErrForbidden), errors.Is(err, authz.ErrInactiveUser):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "authorization check failed", http.StatusInternalServerError)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/sprints" && r.Method == http.MethodGet:
		s.listSprints(w, r)
	case strings.HasPrefix(path, "/sprints/") && r.Method == http.MethodGet:
		s.getSprint(w, r, strings.TrimPrefix(path, "/sprints/"))
	case path == "/reports" && r.Method == http.MethodGet:
		s.getReport(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *apiServer) listSprints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	boardID, _ := strconv.ParseInt(q.Get("board"), 10, 64)
	sprints, err := s.store.ListSprints(r.Context(), storage.SprintFilter{
		BoardID:    boardID,
		State:      types.SprintState(q.Get("state")),
		ProjectKey: q.Get("project"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sprints)
}

func (s *apiServer) getSprint(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http.Error(w, "invalid sprint id", http.StatusBadRequest)
		return
	}
	sprint, err := s.store.GetSprint(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sprint)
}

func (s *apiServer) getReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	boardID, err := strconv.ParseInt(q.Get("board"), 10, 64)
	if err != nil || boardID == 0 {
		http.Error(w, "board query parameter required", http.StatusBadRequest)
		return
	}
	sprintID, _ := strconv.ParseInt(q.Get("sprint"), 10, 64)
	view, err := s.portfolio.GetProjectPortfolio(r.Context(), boardID, sprintID, portfolio.Filters{
		WorkstreamType: types.WorkstreamType(q.Get("type")),
		Category:       q.Get("category"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, view)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8484)")
	rootCmd.AddCommand(serveCmd)
}
