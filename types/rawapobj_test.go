package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, body string) *RawApObj {
	t.Helper()
	raw, err := LoadAsRawApObj([]byte(body))
	require.NoError(t, err)
	return raw
}

func TestGetStringDottedPath(t *testing.T) {
	raw := mustLoad(t, `{"object": {"id": "https://example.com/notes/1", "type": "Note"}}`)

	id, ok := raw.GetString("object.id")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/notes/1", id)

	_, ok = raw.GetString("object.missing")
	assert.False(t, ok)

	_, ok = raw.GetString("object.id.deeper")
	assert.False(t, ok)
}

func TestGetStringTakesFirstArrayElement(t *testing.T) {
	raw := mustLoad(t, `{"to": ["https://a.example/u/a", "https://b.example/u/b"], "cc": []}`)

	to, ok := raw.GetString("to")
	assert.True(t, ok)
	assert.Equal(t, "https://a.example/u/a", to)

	_, ok = raw.GetString("cc")
	assert.False(t, ok)
}

func TestMustGetStringMissingIsEmpty(t *testing.T) {
	raw := mustLoad(t, `{"type": "Follow"}`)

	assert.Equal(t, "Follow", raw.MustGetString("type"))
	assert.Equal(t, "", raw.MustGetString("actor"))
}

func TestGetStringList(t *testing.T) {
	raw := mustLoad(t, `{
		"to": "https://a.example/u/a",
		"cc": ["https://b.example/u/b", 42, "https://c.example/u/c"]
	}`)

	assert.Equal(t, []string{"https://a.example/u/a"}, raw.GetStringList("to"))
	assert.Equal(t, []string{"https://b.example/u/b", "https://c.example/u/c"}, raw.GetStringList("cc"))

	missing := raw.GetStringList("bto")
	assert.NotNil(t, missing)
	assert.Len(t, missing, 0)
}

func TestGetObjectList(t *testing.T) {
	raw := mustLoad(t, `{
		"single": {"name": "#go"},
		"many": [{"name": "#go"}, "stray", {"name": "#fedi"}]
	}`)

	single := raw.GetObjectList("single")
	require.Len(t, single, 1)
	assert.Equal(t, "#go", single[0].MustGetString("name"))

	many := raw.GetObjectList("many")
	require.Len(t, many, 2)
	assert.Equal(t, "#fedi", many[1].MustGetString("name"))

	assert.Nil(t, raw.GetObjectList("missing"))
}

func TestGetRaw(t *testing.T) {
	raw := mustLoad(t, `{"object": {"type": "Note"}, "actor": "https://a.example/u/a"}`)

	obj, ok := raw.GetRaw("object")
	require.True(t, ok)
	assert.Equal(t, "Note", obj.MustGetString("type"))

	_, ok = raw.GetRaw("actor")
	assert.False(t, ok)
}
