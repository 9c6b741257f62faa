package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_UnmarshalKnownAndExtra(t *testing.T) {
	input := `{
		"basic": {"title": "Отчёт", "keywords": ["a", "b"]},
		"xmp": {"creator": "Иванов"},
		"custom": {"x": 1}
	}`

	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(input), &md))

	assert.Equal(t, "Отчёт", md.Basic.Text("title"))
	assert.Equal(t, "a, b", md.Basic.Text("keywords"))
	assert.Equal(t, "Иванов", md.XMP.Text("creator"))
	assert.Empty(t, md.Exif)
	assert.Equal(t, []string{"custom"}, md.ExtraNamespaces())
	assert.JSONEq(t, `{"x": 1}`, string(md.Extra["custom"]))
}

func TestMetadata_RejectsNonObjectNamespace(t *testing.T) {
	var md Metadata
	err := json.Unmarshal([]byte(`{"basic": "строка"}`), &md)
	require.Error(t, err)
}

func TestMetadata_MarshalIsDeterministic(t *testing.T) {
	md := NewMetadata("Петров")
	md.Basic["title"] = "T"
	md.XMP["rights"] = "CC-BY"
	md.Extra = map[string]json.RawMessage{"zeta": json.RawMessage(`1`), "alpha": json.RawMessage(`"x"`)}

	first, err := json.Marshal(md)
	require.NoError(t, err)
	for range 10 {
		again, err := json.Marshal(md.Clone())
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
	assert.JSONEq(t,
		`{"alpha":"x","basic":{"author":"Петров","title":"T"},"exif":{},"xmp":{"rights":"CC-BY"},"zeta":1}`,
		string(first))
}

func TestMetadata_CloneIsDeep(t *testing.T) {
	md := NewMetadata("")
	md.Basic["keywords"] = []any{"a"}

	c := md.Clone()
	c.Basic["title"] = "изменено"
	c.Basic["keywords"].([]any)[0] = "b"

	assert.Empty(t, md.Basic.Text("title"))
	assert.Equal(t, "a", md.Basic.Text("keywords"))
}

func TestNamespace_TextIgnoresBlank(t *testing.T) {
	ns := Namespace{"title": "   ", "keywords": []string{"", " x "}}
	assert.Empty(t, ns.Text("title"))
	assert.Equal(t, "x", ns.Text("keywords"))
	assert.Empty(t, ns.Text("missing"))
}

func TestNamespace_SkipsNonScalarValues(t *testing.T) {
	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(`{
		"basic": {
			"title": {"nested": "x"},
			"author": null,
			"keywords": ["pdf", null, {"a": 1}, ["b"], 7, true]
		}
	}`), &md))

	assert.Empty(t, md.Basic.Text("title"))
	assert.Empty(t, md.Basic.Values("title"))
	assert.Empty(t, md.Basic.Text("author"))
	assert.Equal(t, []string{"pdf", "7", "true"}, md.Basic.Values("keywords"))
	assert.Equal(t, "pdf, 7, true", md.Basic.Text("keywords"))
}
