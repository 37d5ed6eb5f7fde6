package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/atomspace/internal/atomspace"
	"github.com/lazypower/atomspace/internal/store"
)

type nodeRequest struct {
	TypeName string            `json:"type_name" validate:"required"`
	Name     string            `json:"name" validate:"required"`
	Value    json.RawMessage   `json:"value"`
	TV       *store.TruthValue `json:"tv"`
}

type linkRequest struct {
	TypeName string            `json:"type_name" validate:"required"`
	Outgoing []int64           `json:"outgoing" validate:"required,min=1,dive,gt=0"`
	TV       *store.TruthValue `json:"tv"`
}

type tvRequest struct {
	Strength   *float64 `json:"strength" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"required"`
}

type avRequest struct {
	STI *float64 `json:"sti" validate:"required"`
	LTI *float64 `json:"lti" validate:"required"`
}

type patternRequest struct {
	Pattern *atomspace.Pattern `json:"pattern" validate:"required"`
}

type tripleRequest struct {
	Subject   string `json:"subject" validate:"required"`
	Predicate string `json:"predicate" validate:"required"`
	Object    string `json:"object" validate:"required"`
}

type shareRequest struct {
	AtomID        int64  `json:"atom_id" validate:"required,gt=0"`
	TargetOwnerID int64  `json:"target_owner_id" validate:"required,gt=0"`
	ShareType     string `json:"share_type" validate:"omitempty,oneof=read write copy"`
	IsPublic      bool   `json:"is_public"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	as := spaceFrom(r)
	st, err := as.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"info": map[string]any{
			"owner_id": as.Owner(),
			"stats":    st,
		},
	})
}

func (s *Server) handleListAtoms(w http.ResponseWriter, r *http.Request) {
	as := spaceFrom(r)
	atoms, err := as.GetAtoms(r.Context(), r.URL.Query().Get("type"), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views, err := as.Views(r.Context(), atoms)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"count": len(views), "atoms": views})
}

func (s *Server) handleGetAtom(w http.ResponseWriter, r *http.Request) {
	as := spaceFrom(r)
	ctx := r.Context()

	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, perm, err := as.Resolve(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := as.Outgoing(ctx, a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := as.Incoming(ctx, a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rendered, err := as.Render(ctx, a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var outIDs []int64
	if a.IsLink() {
		outIDs = atomIDs(out)
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"atom":       atomspace.NewView(a, outIDs),
		"incoming":   atomIDs(in),
		"rendered":   rendered,
		"permission": perm,
	})
}

func (s *Server) handleDeleteAtom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := spaceFrom(r).DeleteAtom(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeFailure(w, http.StatusNotFound, "not_found", "Atom not found or could not be deleted")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Atom deleted"})
}

func (s *Server) handleSetTruthValue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req tvRequest
	if !s.decode(w, r, &req) {
		return
	}
	as := spaceFrom(r)
	ok, err := as.SetTruthValue(r.Context(), id, store.TruthValue{Strength: *req.Strength, Confidence: *req.Confidence})
	s.respondUpdated(w, r, as, id, ok, err)
}

func (s *Server) handleSetAttentionValue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req avRequest
	if !s.decode(w, r, &req) {
		return
	}
	as := spaceFrom(r)
	ok, err := as.SetAttentionValue(r.Context(), id, store.AttentionValue{STI: *req.STI, LTI: *req.LTI})
	s.respondUpdated(w, r, as, id, ok, err)
}

// respondUpdated reports the outcome of a value setter with the atom's
// current state.
func (s *Server) respondUpdated(w http.ResponseWriter, r *http.Request, as *atomspace.AtomSpace, id int64, ok bool, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeFailure(w, http.StatusNotFound, "not_found", "Atom not found or not writable")
		return
	}
	a, _, err := as.Resolve(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAtom(w, r, as, "atom", a)
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	as := spaceFrom(r)
	a, err := as.AddNode(r.Context(), req.TypeName, req.Name, req.Value, req.TV)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"atom": atomspace.NewView(a, nil)})
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !s.decode(w, r, &req) {
		return
	}
	as := spaceFrom(r)
	a, err := as.AddLink(r.Context(), req.TypeName, req.Outgoing, req.TV)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAtom(w, r, as, "atom", a)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if !s.decode(w, r, &req) {
		return
	}
	as := spaceFrom(r)
	matches, err := as.PatternMatch(r.Context(), *req.Pattern)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views, err := as.Views(r.Context(), matches)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"count": len(views), "matches": views})
}

func (s *Server) handleSaveQuery(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if !s.decode(w, r, &req) {
		return
	}
	q, err := spaceFrom(r).SaveQuery(r.Context(), *req.Pattern)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"query": queryView(q)})
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	qs, err := spaceFrom(r).ListQueries(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]map[string]any, len(qs))
	for i := range qs {
		views[i] = queryView(&qs[i])
	}
	writeSuccess(w, http.StatusOK, map[string]any{"count": len(views), "queries": views})
}

func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views, err := spaceFrom(r).ExecuteQuery(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"count": len(views), "matches": views})
}

func (s *Server) handleAddTriple(w http.ResponseWriter, r *http.Request) {
	var req tripleRequest
	if !s.decode(w, r, &req) {
		return
	}
	as := spaceFrom(r)
	link, err := as.AddTriple(r.Context(), req.Subject, req.Predicate, req.Object)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAtom(w, r, as, "link", link)
}

func (s *Server) handleQuerySubject(w http.ResponseWriter, r *http.Request) {
	subject, err := pathParam(r, "subject")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	triples, err := spaceFrom(r).QuerySubject(r.Context(), subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"count": len(triples), "triples": triples})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if !s.decode(w, r, &req) {
		return
	}
	sh, err := spaceFrom(r).ShareAtom(r.Context(), req.AtomID, req.TargetOwnerID, store.ShareType(req.ShareType), req.IsPublic)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"share": sh})
}

func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	as := spaceFrom(r)
	atoms, err := as.SharedAtoms(r.Context(), int64(queryInt(r, "source_owner_id", 0)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeForeignAtoms(w, r, as, atoms)
}

func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	as := spaceFrom(r)
	atoms, err := as.PublicAtoms(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeForeignAtoms(w, r, as, atoms)
}

// writeForeignAtoms lists atoms of other owners, resolving each link's
// targets individually.
func (s *Server) writeForeignAtoms(w http.ResponseWriter, r *http.Request, as *atomspace.AtomSpace, atoms []store.Atom) {
	views := make([]atomspace.AtomView, len(atoms))
	for i := range atoms {
		out, err := as.Outgoing(r.Context(), &atoms[i])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var ids []int64
		if atoms[i].IsLink() {
			ids = atomIDs(out)
		}
		views[i] = atomspace.NewView(&atoms[i], ids)
	}
	writeSuccess(w, http.StatusOK, map[string]any{"count": len(views), "atoms": views})
}

func (s *Server) handleCopyShare(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	as := spaceFrom(r)
	a, err := as.CopyShared(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAtom(w, r, as, "atom", a)
}

// writeAtom responds with a single atom under key, link targets resolved.
func (s *Server) writeAtom(w http.ResponseWriter, r *http.Request, as *atomspace.AtomSpace, key string, a *store.Atom) {
	v, err := as.View(r.Context(), a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{key: v})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	as := spaceFrom(r)
	exp, err := as.Export(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := fmt.Sprintf("atomspace_%d_%d.json", as.Owner(), time.Now().Unix())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeFailure(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return
	}
	n, err := spaceFrom(r).Import(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"imported_count": n})
}

func queryView(q *store.SavedQuery) map[string]any {
	v := map[string]any{
		"id":         q.ID,
		"pattern":    json.RawMessage(q.Pattern),
		"created_at": time.UnixMilli(q.CreatedAt).UTC(),
		"result":     nil,
	}
	if q.Result != nil {
		v["result"] = json.RawMessage(q.Result)
	}
	if q.ExecutedAt != nil {
		v["executed_at"] = time.UnixMilli(*q.ExecutedAt).UTC()
	}
	return v
}

func atomIDs(atoms []store.Atom) []int64 {
	ids := make([]int64, len(atoms))
	for i, a := range atoms {
		ids[i] = a.ID
	}
	return ids
}
