package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/atomspace/internal/atomspace"
)

// OwnerHeader carries the id of the acting owner. Authentication happens in
// front of this service; the header is trusted as given.
const OwnerHeader = "X-Owner-ID"

type ctxKey int

const spaceKey ctxKey = iota

// requireOwner resolves the acting owner and attaches its atomspace to the
// request context. A missing or malformed owner id is a 401.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(OwnerHeader)
		owner, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || owner <= 0 {
			writeFailure(w, http.StatusUnauthorized, "unauthorized", OwnerHeader+" header with a positive owner id is required")
			return
		}

		as := atomspace.New(s.db, owner, atomspace.Options{Logger: s.log, Limits: s.limits})
		ctx := context.WithValue(r.Context(), spaceKey, as)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// spaceFrom returns the atomspace attached by requireOwner.
func spaceFrom(r *http.Request) *atomspace.AtomSpace {
	return r.Context().Value(spaceKey).(*atomspace.AtomSpace)
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(log *zap.SugaredLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Infow("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
				"owner", r.Header.Get(OwnerHeader),
			)
		})
	}
}
