package expand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand_AppendsSynonyms(t *testing.T) {
	e := New()

	got := e.Expand("fix the auth bug")

	assert.True(t, strings.HasPrefix(got, "fix the auth bug"), "original query must survive as a prefix")
	assert.Contains(t, got, "repair")
	assert.Contains(t, got, "authentication")
	assert.Contains(t, got, "defect")
}

func TestExpand_NoRecognizedTerms(t *testing.T) {
	e := New()
	assert.Equal(t, "quantum entanglement basics", e.Expand("quantum entanglement basics"))
}

func TestExpand_Deterministic(t *testing.T) {
	e := New()
	first := e.Expand("database error on delete")
	second := e.Expand("database error on delete")
	assert.Equal(t, first, second)
}

func TestExpand_NoDuplicateWords(t *testing.T) {
	e := NewWithTable(map[string][]string{
		"db": {"database", "storage"},
	})

	got := e.Expand("db database migration")

	// "database" is already in the query, only "storage" may be added.
	assert.Equal(t, "db database migration storage", got)
}

func TestExpand_SynonymCapPerTerm(t *testing.T) {
	e := NewWithTable(map[string][]string{
		"net": {"network", "socket", "transport", "wire"},
	})

	got := e.Expand("net layer")

	assert.Equal(t, "net layer network socket", got, "at most two synonyms per term")
}

func TestExpand_CaseInsensitiveLookup(t *testing.T) {
	e := New()
	got := e.Expand("Fix Auth")
	assert.True(t, strings.HasPrefix(got, "Fix Auth"))
	assert.Contains(t, got, "authentication")
}
