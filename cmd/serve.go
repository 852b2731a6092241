package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/treeline-forestry/dta-cli/internal/export"
	"github.com/treeline-forestry/dta-cli/internal/logbook"
	"github.com/treeline-forestry/dta-cli/internal/model"
	"github.com/treeline-forestry/dta-cli/internal/session"
	"github.com/treeline-forestry/dta-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assessment data over a local HTTP API",
	Long:  "Exposes the logbook, general pages, tree submission, and workbook export to companion devices on the field network.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		zap.L().Info("serving", zap.Int("port", port))

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "serve: shutdown")
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return eris.Wrap(err, "serve: listen")
		}
	},
}

func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/fields", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"general":    model.GeneralFields,
			"tree":       model.TreeFields,
			"indicators": model.DangerIndicators,
			"decisions":  model.Decisions,
		})
	})

	r.Get("/api/logbook", func(w http.ResponseWriter, req *http.Request) {
		trees, err := st.ListTrees(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		idx := logbook.NewIndex(trees)
		days := make([]dayCount, 0)
		for _, day := range idx.Days() {
			days = append(days, dayCount{Day: day, Trees: idx.Count(day)})
		}
		writeJSON(w, http.StatusOK, days)
	})

	r.Get("/api/logbook/{dateKey}", func(w http.ResponseWriter, req *http.Request) {
		dateKey := chi.URLParam(req, "dateKey")
		trees, err := st.ListTrees(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		idx := logbook.NewIndex(trees)
		writeJSON(w, http.StatusOK, idx.ForDay(dateKey))
	})

	r.Get("/api/general/{dateKey}", func(w http.ResponseWriter, req *http.Request) {
		general, err := st.LoadGeneral(req.Context(), chi.URLParam(req, "dateKey"))
		if err != nil {
			writeError(w, err)
			return
		}
		if general == nil {
			http.Error(w, `{"error":"no general page for day"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, general)
	})

	r.Put("/api/general/{dateKey}", func(w http.ResponseWriter, req *http.Request) {
		var general model.GeneralInfo
		if err := json.NewDecoder(req.Body).Decode(&general); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if err := st.SaveGeneral(req.Context(), chi.URLParam(req, "dateKey"), general); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, general)
	})

	r.Post("/api/trees", func(w http.ResponseWriter, req *http.Request) {
		var payload treePayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		rec, err := submitTree(req, st, payload)
		if err != nil {
			if session.IsValidation(err) {
				http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusUnprocessableEntity)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	})

	r.Delete("/api/trees/{id}", func(w http.ResponseWriter, req *http.Request) {
		err := st.DeleteTree(req.Context(), model.TreeRecord{ID: chi.URLParam(req, "id")})
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/api/export/{dateKey}", func(w http.ResponseWriter, req *http.Request) {
		dateKey := chi.URLParam(req, "dateKey")
		trees, err := st.ListTrees(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		idx := logbook.NewIndex(trees)
		records := idx.ForDay(dateKey)
		if len(records) == 0 {
			http.Error(w, `{"error":"no tree records for day"}`, http.StatusNotFound)
			return
		}
		general, err := st.LoadGeneral(req.Context(), dateKey)
		if err != nil {
			writeError(w, err)
			return
		}
		if general == nil {
			general = model.GeneralInfo{}
		}

		path := filepath.Join(os.TempDir(), fmt.Sprintf("dta-%s.xlsx", dateKey))
		rows := export.BuildRows(general, records)
		if err := export.WriteWorkbook(general, rows, path); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=dta-%s.xlsx", dateKey))
		http.ServeFile(w, req, path)
	})

	return r
}

// treePayload is one tree assessment submitted over the API. A non-zero
// TreeNumber updates that day's existing record in place.
type treePayload struct {
	DateKey    string            `json:"date_key"`
	TreeNumber int               `json:"tree_number,omitempty"`
	Tree       map[string]string `json:"tree"`
	LOD        int               `json:"lod"`
	Indicators []string          `json:"indicators"`
	AST        string            `json:"ast,omitempty"`
	RST        string            `json:"rst,omitempty"`
	Decision   string            `json:"decision,omitempty"`
	Other      string            `json:"other,omitempty"`
}

// submitTree drives a session through the assessment flow for one
// submitted tree, so the API enforces the same guards as the CLI.
func submitTree(req *http.Request, st store.Store, payload treePayload) (*model.TreeRecord, error) {
	ctx := req.Context()

	sess := session.New(st)
	if err := sess.Hydrate(ctx); err != nil {
		return nil, err
	}
	if payload.DateKey != "" {
		if err := sess.JumpToDaySummary(ctx, payload.DateKey); err != nil {
			return nil, err
		}
	}

	if payload.TreeNumber > 0 {
		idx := logbook.NewIndex(sess.Trees())
		var target *model.TreeRecord
		for _, rec := range idx.ForDay(sess.ActiveDateKey()) {
			if rec.TreeNumber == payload.TreeNumber {
				found := rec
				target = &found
				break
			}
		}
		if target == nil {
			return nil, store.ErrNotFound
		}
		sess.BeginEdit(*target)
		sess.SetLOD(model.LOD(payload.LOD))
	} else {
		sess.StartTreeAssessment()
		sess.SetLOD(model.LOD(payload.LOD))
	}

	for key, value := range payload.Tree {
		sess.SetTreeField(key, value)
	}
	for _, label := range payload.Indicators {
		sess.ToggleIndicator(label)
	}
	sess.SetAST(payload.AST)
	sess.SetRST(payload.RST)

	if err := sess.ContinueTree(); err != nil {
		return nil, err
	}
	if err := sess.ContinueLOD(); err != nil {
		return nil, err
	}
	if err := sess.ContinueLODDetails(); err != nil {
		return nil, err
	}
	if payload.Decision != "" {
		sess.SelectDecision(payload.Decision)
	}
	if payload.Other != "" {
		sess.SetDecisionOther(payload.Other)
	}
	if err := sess.FinishDecision(ctx); err != nil {
		return nil, err
	}

	if payload.TreeNumber > 0 {
		for _, rec := range sess.Trees() {
			if rec.DateKey == sess.ActiveDateKey() && rec.TreeNumber == payload.TreeNumber {
				return &rec, nil
			}
		}
	}
	rec := sess.Trees()[0]
	return &rec, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if eris.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	zap.L().Error("request failed", zap.Error(err))
	http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), status)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
