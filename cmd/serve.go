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
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/artifact"
	"github.com/sells-group/outreach-cli/internal/gate"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/render"
	"github.com/sells-group/outreach-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve pipeline status and render requests over HTTP",
	Long:  "Exposes artifact and run status, pipeline metrics, and an async render endpoint. A background checker watches run health and pushes webhook alerts while the server is up.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initResearchEnv(ctx, "serve", model.CacheUse)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		// Render requests need a generator; without a key the endpoint
		// answers 503 and everything else still serves.
		var submit renderSubmitFunc
		if cfg.Anthropic.Key != "" {
			renderer := initRenderer(model.ModeHeadless)
			refs := render.LoadVoiceRefs(cfg.Render.VoiceDir)
			submit = func(identity model.Identity) {
				go serveRender(ctx, env, renderer, refs, identity)
			}
		} else {
			zap.L().Warn("anthropic key not set, render endpoint disabled")
		}

		router := buildRouter(env.Store, collector, submit)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
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
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// renderSubmitFunc hands a render request off to the background pipeline.
// Nil means no generator is configured.
type renderSubmitFunc func(model.Identity)

// buildRouter assembles the HTTP surface. Dependencies come in as arguments
// so handler tests can run against httptest without a live pipeline.
func buildRouter(st store.Store, collector *monitoring.Collector, submit renderSubmitFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		arts, err := artifact.Scan(cfg.Artifacts.Root)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "artifact scan failed")
			return
		}
		respondJSON(w, http.StatusOK, struct {
			Total    int                          `json:"total"`
			ByStatus map[model.ProspectStatus]int `json:"by_status"`
		}{len(arts), artifact.CountByStatus(arts)})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		filter := store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
			Limit:  limit,
		}
		runs, err := st.ListRuns(req.Context(), filter)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "run listing failed")
			return
		}
		respondJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/metrics", func(w http.ResponseWriter, req *http.Request) {
		snap, err := collector.Collect(req.Context(), cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "metrics collection failed")
			return
		}
		respondJSON(w, http.StatusOK, snap)
	})

	r.Post("/api/render", func(w http.ResponseWriter, req *http.Request) {
		if submit == nil {
			respondError(w, http.StatusServiceUnavailable, "renderer not configured")
			return
		}
		var body struct {
			Company string `json:"company"`
			Contact string `json:"contact"`
			Title   string `json:"title"`
			Domain  string `json:"domain"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Company == "" || body.Contact == "" {
			respondError(w, http.StatusBadRequest, "company and contact are required")
			return
		}

		submit(model.Identity{
			Contact: body.Contact,
			Title:   body.Title,
			Company: body.Company,
			Domain:  body.Domain,
		})
		respondJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"company": body.Company,
		})
	})

	return r
}

// serveRender runs the unattended draft flow for one accepted request.
// Outcomes land in run bookkeeping and the artifact tree; the requester
// already got its 202.
func serveRender(ctx context.Context, env *researchEnv, renderer *render.Renderer, refs render.VoiceRefs, identity model.Identity) {
	log := zap.L().With(
		zap.String("company", identity.Company),
		zap.String("contact", identity.Contact),
	)

	agg, err := env.Orchestrator.Research(ctx, identity)
	if err != nil {
		log.Error("serve: research failed", zap.Error(err))
		return
	}

	runID := uuid.NewString()
	if run, rerr := env.Store.CreateRun(ctx, identity, agg.CanonicalID); rerr != nil {
		log.Warn("run bookkeeping unavailable", zap.Error(rerr))
	} else {
		runID = run.ID
		advanceRun(ctx, env.Store, runID, model.RunSynthesizing)
	}

	fail := func(cause error) {
		summary := newRunSummary(agg)
		summary.Error = cause.Error()
		finishRun(ctx, env.Store, runID, model.RunFailed, summary)
	}

	pctx, err := env.Synth.Synthesize(agg)
	if err != nil {
		fail(err)
		log.Error("serve: synthesize failed", zap.Error(err))
		return
	}
	brief, err := env.Engine.BuildBrief(agg, pctx, cfg.Rules.DefaultTier)
	if err != nil {
		fail(err)
		log.Error("serve: brief scoring failed", zap.Error(err))
		return
	}
	brief.RunID = runID

	if brief.Status == model.BriefNeedsMoreResearch {
		finishRun(ctx, env.Store, runID, model.RunNeedsResearch, draftSummary(agg, brief, ""))
		log.Info("serve: research too thin to draft")
		return
	}

	// Webhook renders are unattended, so the batch-render warning set applies.
	decision := gate.BatchRender.Evaluate(brief, false)
	if decision.Blocked() {
		summary := draftSummary(agg, brief, decision.ReasonCode)
		if dir, werr := artifact.NewWriter(cfg.Render.OutRoot).WriteBlocked(brief, decision); werr != nil {
			log.Warn("blocked artifact not written", zap.Error(werr))
		} else {
			summary.ArtifactDir = dir
		}
		pushReview(ctx, brief, decision)
		finishRun(ctx, env.Store, runID, model.RunBlocked, summary)
		log.Info("serve: gate blocked render", zap.String("reason", decision.ReasonCode))
		return
	}

	advanceRun(ctx, env.Store, runID, model.RunRendering)
	res, err := renderer.Render(ctx, brief, refs)
	if err != nil {
		fail(err)
		log.Error("serve: render failed", zap.Error(err))
		return
	}

	summary := draftSummary(agg, brief, "")
	summary.RenderStatus = res.Status
	summary.ArtifactDir = res.Dir
	summary.Usage = res.Usage
	finishRun(ctx, env.Store, runID, runStatusForRender(res.Status), summary)
	log.Info("serve: render complete",
		zap.String("status", string(res.Status)),
		zap.String("dir", res.Dir),
	)
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}
