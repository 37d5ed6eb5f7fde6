package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/atomspace/internal/atomspace"
	"github.com/lazypower/atomspace/internal/store"
)

// Options configure a Server.
type Options struct {
	Version string
	Logger  *zap.SugaredLogger
	Limits  atomspace.Limits
}

// Server is the atomspace HTTP API server.
type Server struct {
	db      *store.DB
	router  chi.Router
	version string
	started time.Time
	log     *zap.SugaredLogger
	limits  atomspace.Limits
}

// New creates a new Server backed by db.
func New(db *store.DB, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	limits := opts.Limits
	if limits == (atomspace.Limits{}) {
		limits = atomspace.DefaultLimits
	}
	s := &Server{
		db:      db,
		version: opts.Version,
		started: time.Now(),
		log:     log,
		limits:  limits,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/agents", s.handleAgents)

		r.Route("/atomspace", func(r chi.Router) {
			r.Use(s.requireOwner)

			r.Get("/info", s.handleInfo)

			r.Get("/atoms", s.handleListAtoms)
			r.Get("/atoms/{id}", s.handleGetAtom)
			r.Delete("/atoms/{id}", s.handleDeleteAtom)
			r.Put("/atoms/{id}/tv", s.handleSetTruthValue)
			r.Put("/atoms/{id}/av", s.handleSetAttentionValue)
			r.Post("/nodes", s.handleAddNode)
			r.Post("/links", s.handleAddLink)

			r.Post("/query", s.handleQuery)
			r.Post("/queries", s.handleSaveQuery)
			r.Get("/queries", s.handleListQueries)
			r.Post("/queries/{id}/execute", s.handleExecuteQuery)

			r.Post("/triples", s.handleAddTriple)
			r.Get("/triples/{subject}", s.handleQuerySubject)

			r.Post("/share", s.handleShare)
			r.Get("/shared", s.handleShared)
			r.Get("/public", s.handlePublic)
			r.Post("/shares/{id}/copy", s.handleCopyShare)

			r.Get("/export", s.handleExport)
			r.Post("/import", s.handleImport)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	limit := atomspace.ClampLimit(queryInt(r, "limit", 0), s.limits.DefaultPage, s.limits.MaxPage)
	owners, err := s.db.ListOwners(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if owners == nil {
		owners = []store.OwnerSummary{}
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"count":  len(owners),
		"agents": owners,
	})
}
