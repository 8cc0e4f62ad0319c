package rui

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

const collectTestMarkup = `<div id="form">` +
	`<input data-rui-template="names" data-rui-index="0" value="a">` +
	`<div><input data-rui-template="names" data-rui-index="2" value="c"></div>` +
	`<input data-rui-template="names" data-rui-index="1" value="b">` +
	`<input data-rui-template="other" data-rui-index="0" value="x">` +
	`</div>` +
	`<input id="title" value="report">`

func TestCollectArgs(t *testing.T) {
	tree := newTestTree(t, collectTestMarkup)
	anchor := tree.ResolveId("form")

	resolved, err := CollectArgs(tree, anchor, map[string]any{
		"names": "*names",
		"title": "title.value",
		"mode":  "plain",
		"count": 3,
	})
	assert.Equal(t, nil, err)
	// index order wins over document order
	assert.Equal(t, []string{"a", "b", "c"}, resolved["names"])
	assert.Equal(t, "report", resolved["title"])
	assert.Equal(t, "plain", resolved["mode"])
	assert.Equal(t, 3, resolved["count"])
}

func TestCollectArgsSparseIndexes(t *testing.T) {
	tree := newTestTree(t, `<div id="form">`+
		`<input data-rui-template="names" data-rui-index="3" value="last">`+
		`</div>`)
	anchor := tree.ResolveId("form")

	resolved, err := CollectArgs(tree, anchor, map[string]any{
		"names": "*names",
	})
	assert.Equal(t, nil, err)
	// the array is sized by the highest index, holes stay empty
	assert.Equal(t, []string{"", "", "", "last"}, resolved["names"])
}

func TestCollectArgsErrors(t *testing.T) {
	tree := newTestTree(t, `<div id="form">`+
		`<input data-rui-template="names" value="a">`+
		`</div>`)
	anchor := tree.ResolveId("form")

	_, err := CollectArgs(tree, anchor, map[string]any{
		"names": "*names",
	})
	assert.NotEqual(t, nil, err)

	_, err = CollectArgs(tree, anchor, map[string]any{
		"title": "missing.value",
	})
	assert.NotEqual(t, nil, err)
}

func TestCollectArgsFormatPassThrough(t *testing.T) {
	tree := newTestTree(t, `<div id="form"></div>`)
	anchor := tree.ResolveId("form")

	// server-side format references are never resolved on this side
	resolved, err := CollectArgs(tree, anchor, map[string]any{
		"path": "{item.path}",
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, "{item.path}", resolved["path"])
}
