package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func atomID(t *testing.T, resp map[string]any, key string) int64 {
	t.Helper()
	atom, ok := resp[key].(map[string]any)
	require.True(t, ok, "response has no %q: %v", key, resp)
	return int64(atom["id"].(float64))
}

func TestAddNodeAndGet(t *testing.T) {
	srv := testServer(t)

	w, resp := do(t, srv, "POST", "/api/atomspace/nodes", 1,
		`{"type_name":"ConceptNode","name":"Alice","value":{"age":30},"tv":{"strength":0.9,"confidence":0.8}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", resp["result"])
	id := atomID(t, resp, "atom")

	w, resp = do(t, srv, "GET", fmt.Sprintf("/api/atomspace/atoms/%d", id), 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	atom := resp["atom"].(map[string]any)
	assert.Equal(t, "Alice", atom["name"])
	assert.Equal(t, map[string]any{"age": float64(30)}, atom["value"])
	assert.Equal(t, `(ConceptNode "Alice")`, resp["rendered"])
	assert.Equal(t, "write", resp["permission"])

	// Another owner cannot see it.
	w, resp = do(t, srv, "GET", fmt.Sprintf("/api/atomspace/atoms/%d", id), 2, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", resp["error_type"])
}

func TestAddNodeValidation(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		body      string
		status    int
		errorType string
	}{
		{`{"type_name":"ConceptNode"}`, http.StatusBadRequest, "validation"},
		{`{"type_name":"ListLink","name":"x"}`, http.StatusBadRequest, "validation"},
		{`{not json`, http.StatusBadRequest, "invalid_json"},
	}
	for _, tt := range tests {
		w, resp := do(t, srv, "POST", "/api/atomspace/nodes", 1, tt.body)
		assert.Equal(t, tt.status, w.Code, tt.body)
		assert.Equal(t, tt.errorType, resp["error_type"], tt.body)
		assert.Equal(t, "error", resp["result"])
	}

	_, resp := do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode"}`)
	assert.Contains(t, resp["message"], "name is required")
}

func TestAddLinkAndDelete(t *testing.T) {
	srv := testServer(t)

	_, a := do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode","name":"A"}`)
	_, b := do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode","name":"B"}`)
	aID, bID := atomID(t, a, "atom"), atomID(t, b, "atom")

	w, resp := do(t, srv, "POST", "/api/atomspace/links", 1,
		fmt.Sprintf(`{"type_name":"SimilarityLink","outgoing":[%d,%d]}`, aID, bID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	link := resp["atom"].(map[string]any)
	assert.Equal(t, []any{float64(aID), float64(bID)}, link["outgoing"])
	linkID := int64(link["id"].(float64))

	w, _ = do(t, srv, "POST", "/api/atomspace/links", 1, `{"type_name":"SimilarityLink","outgoing":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, srv, "POST", "/api/atomspace/links", 1, `{"type_name":"SimilarityLink","outgoing":[9999]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", resp["error_type"])

	_, resp = do(t, srv, "GET", fmt.Sprintf("/api/atomspace/atoms/%d", aID), 1, "")
	assert.Equal(t, []any{float64(linkID)}, resp["incoming"])

	w, _ = do(t, srv, "DELETE", fmt.Sprintf("/api/atomspace/atoms/%d", linkID), 2, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = do(t, srv, "DELETE", fmt.Sprintf("/api/atomspace/atoms/%d", linkID), 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Atom deleted", resp["message"])

	_, resp = do(t, srv, "GET", fmt.Sprintf("/api/atomspace/atoms/%d", aID), 1, "")
	assert.Equal(t, []any{}, resp["incoming"])
}

func TestSetValues(t *testing.T) {
	srv := testServer(t)

	_, resp := do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode","name":"A"}`)
	id := atomID(t, resp, "atom")

	w, resp := do(t, srv, "PUT", fmt.Sprintf("/api/atomspace/atoms/%d/tv", id), 1, `{"strength":2,"confidence":0.5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tv := resp["atom"].(map[string]any)["tv"].(map[string]any)
	assert.Equal(t, float64(1), tv["strength"])

	w, resp = do(t, srv, "PUT", fmt.Sprintf("/api/atomspace/atoms/%d/av", id), 1, `{"sti":-3,"lti":7}`)
	require.Equal(t, http.StatusOK, w.Code)
	av := resp["atom"].(map[string]any)["av"].(map[string]any)
	assert.Equal(t, float64(-3), av["sti"])

	w, _ = do(t, srv, "PUT", fmt.Sprintf("/api/atomspace/atoms/%d/av", id), 1, `{"sti":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, srv, "PUT", fmt.Sprintf("/api/atomspace/atoms/%d/tv", id), 2, `{"strength":0,"confidence":0}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, srv, "PUT", "/api/atomspace/atoms/abc/tv", 1, `{"strength":0,"confidence":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndInfo(t *testing.T) {
	srv := testServer(t)
	for _, n := range []string{"a", "b", "c"} {
		do(t, srv, "POST", "/api/atomspace/nodes", 1, fmt.Sprintf(`{"type_name":"ConceptNode","name":%q}`, n))
	}
	do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"PredicateNode","name":"p"}`)

	_, resp := do(t, srv, "GET", "/api/atomspace/atoms?limit=2&offset=1", 1, "")
	assert.Equal(t, float64(2), resp["count"])

	_, resp = do(t, srv, "GET", "/api/atomspace/atoms?type=PredicateNode", 1, "")
	assert.Equal(t, float64(1), resp["count"])

	_, resp = do(t, srv, "GET", "/api/atomspace/info", 1, "")
	info := resp["info"].(map[string]any)
	assert.Equal(t, float64(1), info["owner_id"])
	stats := info["stats"].(map[string]any)
	assert.Equal(t, float64(4), stats["total_atoms"])
	assert.Equal(t, float64(4), stats["node_count"])
}

func TestTriplesAndQuery(t *testing.T) {
	srv := testServer(t)

	w, resp := do(t, srv, "POST", "/api/atomspace/triples", 1, `{"subject":"Alice","predicate":"knows","object":"Bob"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "EvaluationLink", resp["link"].(map[string]any)["type_name"])

	w, _ = do(t, srv, "POST", "/api/atomspace/triples", 1, `{"subject":"Alice","predicate":"knows"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, resp = do(t, srv, "GET", "/api/atomspace/triples/Alice", 1, "")
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, []any{map[string]any{"subject": "Alice", "predicate": "knows", "object": "Bob"}}, resp["triples"])

	_, resp = do(t, srv, "POST", "/api/atomspace/query", 1, `{"pattern":{"type_name":"ConceptNode"}}`)
	assert.Equal(t, float64(2), resp["count"])

	_, resp = do(t, srv, "POST", "/api/atomspace/query", 1, `{"pattern":{"name":"^Al","name_mode":"regex"}}`)
	assert.Equal(t, float64(1), resp["count"])

	w, resp = do(t, srv, "POST", "/api/atomspace/query", 1, `{"pattern":{"name":"(","name_mode":"regex"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", resp["error_type"])

	w, _ = do(t, srv, "POST", "/api/atomspace/query", 1, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSavedQueries(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode","name":"Cat"}`)

	w, resp := do(t, srv, "POST", "/api/atomspace/queries", 1, `{"pattern":{"name":"Cat"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	q := resp["query"].(map[string]any)
	assert.Nil(t, q["result"])
	id := int64(q["id"].(float64))

	w, resp = do(t, srv, "POST", fmt.Sprintf("/api/atomspace/queries/%d/execute", id), 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["count"])

	_, resp = do(t, srv, "GET", "/api/atomspace/queries", 1, "")
	queries := resp["queries"].([]any)
	require.Len(t, queries, 1)
	assert.NotNil(t, queries[0].(map[string]any)["executed_at"])

	w, _ = do(t, srv, "POST", fmt.Sprintf("/api/atomspace/queries/%d/execute", id), 2, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShareFlow(t *testing.T) {
	srv := testServer(t)

	_, resp := do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode","name":"Pizza"}`)
	id := atomID(t, resp, "atom")

	w, resp := do(t, srv, "POST", "/api/atomspace/share", 1, fmt.Sprintf(`{"atom_id":%d,"target_owner_id":2,"share_type":"copy"}`, id))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	share := resp["share"].(map[string]any)
	shareID := int64(share["id"].(float64))

	w, resp = do(t, srv, "POST", "/api/atomspace/share", 1, fmt.Sprintf(`{"atom_id":%d,"target_owner_id":2,"share_type":"own"}`, id))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp["message"], "share_type must be one of")

	w, _ = do(t, srv, "POST", "/api/atomspace/share", 1, fmt.Sprintf(`{"atom_id":%d,"target_owner_id":1}`, id))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, resp = do(t, srv, "GET", "/api/atomspace/shared?source_owner_id=1", 2, "")
	assert.Equal(t, float64(1), resp["count"])
	_, resp = do(t, srv, "GET", "/api/atomspace/shared", 3, "")
	assert.Equal(t, float64(0), resp["count"])

	_, resp = do(t, srv, "GET", fmt.Sprintf("/api/atomspace/atoms/%d", id), 2, "")
	assert.Equal(t, "read", resp["permission"])

	w, resp = do(t, srv, "POST", fmt.Sprintf("/api/atomspace/shares/%d/copy", shareID), 2, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEqual(t, id, atomID(t, resp, "atom"))

	w, _ = do(t, srv, "POST", fmt.Sprintf("/api/atomspace/shares/%d/copy", shareID), 3, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicAtoms(t *testing.T) {
	srv := testServer(t)

	_, resp := do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode","name":"Sun"}`)
	id := atomID(t, resp, "atom")
	do(t, srv, "POST", "/api/atomspace/share", 1, fmt.Sprintf(`{"atom_id":%d,"target_owner_id":2,"is_public":true}`, id))

	_, resp = do(t, srv, "GET", "/api/atomspace/public?limit=0", 9, "")
	assert.Equal(t, float64(1), resp["count"])
}

func TestExportImport(t *testing.T) {
	srv := testServer(t)

	do(t, srv, "POST", "/api/atomspace/triples", 1, `{"subject":"Alice","predicate":"likes","object":"Tea"}`)

	w, _ := do(t, srv, "GET", "/api/atomspace/export", 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	var exp struct {
		AtomCount int `json:"atom_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exp))
	assert.Equal(t, 5, exp.AtomCount)

	w, resp := do(t, srv, "POST", "/api/atomspace/import", 2, w.Body.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(5), resp["imported_count"])

	_, resp = do(t, srv, "GET", "/api/atomspace/triples/Alice", 2, "")
	assert.Equal(t, float64(1), resp["count"])

	w, resp = do(t, srv, "POST", "/api/atomspace/import", 3, `{"atoms":[{"id":1,"atom_type":"link","type_name":"ListLink","outgoing":[7]}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "import_failed", resp["error_type"])

	w, resp = do(t, srv, "POST", "/api/atomspace/import", 3, `{"atoms":[`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "import_failed", resp["error_type"])
}

func TestLinkResponsesCarryOutgoing(t *testing.T) {
	srv := testServer(t)

	_, a := do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode","name":"A"}`)
	_, b := do(t, srv, "POST", "/api/atomspace/nodes", 1, `{"type_name":"ConceptNode","name":"B"}`)
	aID, bID := atomID(t, a, "atom"), atomID(t, b, "atom")
	want := []any{float64(aID), float64(bID)}

	_, resp := do(t, srv, "POST", "/api/atomspace/links", 1,
		fmt.Sprintf(`{"type_name":"ListLink","outgoing":[%d,%d]}`, aID, bID))
	linkID := atomID(t, resp, "atom")

	w, resp := do(t, srv, "PUT", fmt.Sprintf("/api/atomspace/atoms/%d/tv", linkID), 1, `{"strength":0.5,"confidence":0.5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, want, resp["atom"].(map[string]any)["outgoing"])

	w, resp = do(t, srv, "PUT", fmt.Sprintf("/api/atomspace/atoms/%d/av", linkID), 1, `{"sti":1,"lti":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, want, resp["atom"].(map[string]any)["outgoing"])

	_, resp = do(t, srv, "POST", "/api/atomspace/share", 1, fmt.Sprintf(`{"atom_id":%d,"target_owner_id":2,"share_type":"copy"}`, linkID))
	shareID := int64(resp["share"].(map[string]any)["id"].(float64))

	w, resp = do(t, srv, "POST", fmt.Sprintf("/api/atomspace/shares/%d/copy", shareID), 2, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	copied := resp["atom"].(map[string]any)
	assert.NotEqual(t, float64(linkID), copied["id"])
	assert.Equal(t, want, copied["outgoing"])
}

func TestQuerySubjectEscapedPath(t *testing.T) {
	srv := testServer(t)

	w, _ := do(t, srv, "POST", "/api/atomspace/triples", 1, `{"subject":"AC/DC","predicate":"plays","object":"Rock"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	do(t, srv, "POST", "/api/atomspace/triples", 1, `{"subject":"100%","predicate":"is","object":"Full"}`)

	_, resp := do(t, srv, "GET", "/api/atomspace/triples/AC%2FDC", 1, "")
	assert.Equal(t, []any{map[string]any{"subject": "AC/DC", "predicate": "plays", "object": "Rock"}}, resp["triples"])

	_, resp = do(t, srv, "GET", "/api/atomspace/triples/100%25", 1, "")
	assert.Equal(t, float64(1), resp["count"])
}
