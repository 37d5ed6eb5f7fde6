package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	dir string
	db  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ATOMSPACE_DB", "")
	return &harness{dir: dir, db: filepath.Join(dir, "atomspace.db")}
}

// run executes the CLI against the harness database and returns stdout.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", filepath.Join(h.dir, "missing.toml"), "--db", h.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, "atomspace %s", strings.Join(args, " "))
	return out
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "version")
	assert.True(t, strings.HasPrefix(out, "atomspace dev"), out)
}

func TestTripleCommands(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "triple", "Alice", "knows", "Bob")
	assert.Contains(t, out, `(EvaluationLink (PredicateNode "knows") (ListLink (ConceptNode "Alice") (ConceptNode "Bob")))`)

	out = h.mustRun(t, "triples", "Alice")
	assert.Equal(t, "Alice knows Bob\n", out)

	out = h.mustRun(t, "--owner", "2", "triples", "Alice")
	assert.Equal(t, "No facts about Alice.\n", out)
}

func TestNodeLinkMatch(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, "node", "ConceptNode", "cat", "--value", `{"legs":4}`)
	h.mustRun(t, "node", "ConceptNode", "dog")
	out := h.mustRun(t, "link", "SimilarityLink", "1", "2")
	assert.Equal(t, "#3 (SimilarityLink (ConceptNode \"cat\") (ConceptNode \"dog\"))\n", out)

	out = h.mustRun(t, "match", "--type-name", "ConceptNode")
	assert.Equal(t, 2, strings.Count(out, "\n"))

	out = h.mustRun(t, "match", "--name", "^d", "--mode", "regex")
	assert.Equal(t, "#2 (ConceptNode \"dog\")\n", out)

	_, err := h.run(t, "link", "SimilarityLink", "1", "x")
	assert.Error(t, err)

	_, err = h.run(t, "node", "ListLink", "nope")
	assert.Error(t, err)

	out = h.mustRun(t, "stats")
	assert.Contains(t, out, `"total_atoms": 3`)
}

func TestShareAndAgents(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, "node", "ConceptNode", "sun")
	out := h.mustRun(t, "share", "1", "2", "--public")
	assert.Contains(t, out, `"is_public": true`)

	_, err := h.run(t, "share", "1", "2", "--type", "own")
	assert.Error(t, err)

	h.mustRun(t, "--owner", "2", "node", "ConceptNode", "moon")
	out = h.mustRun(t, "agents")
	assert.Contains(t, out, "owner 1: 1 atoms")
	assert.Contains(t, out, "owner 2: 1 atoms")
}

func TestExportImport(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, "triple", "Alice", "likes", "Tea")
	file := filepath.Join(h.dir, "export.json")
	h.mustRun(t, "export", "-o", file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"atom_count": 5`)

	out := h.mustRun(t, "--owner", "7", "import", file)
	assert.Equal(t, "imported 5 atoms\n", out)

	out = h.mustRun(t, "--owner", "7", "triples", "Alice")
	assert.Equal(t, "Alice likes Tea\n", out)

	bad := filepath.Join(h.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"atoms":[{"id":1,"atom_type":"link","type_name":"ListLink","outgoing":[9]}]}`), 0o644))
	_, err = h.run(t, "--owner", "8", "import", bad)
	assert.Error(t, err)
}

func TestInvalidOwner(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--owner", "0", "stats")
	assert.Error(t, err)
}
