package rui

import (
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
)

func TestParseEvent(t *testing.T) {
	statements, err := ParseBinding(`event: agent.Greet(name="world")`)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(statements))
	assert.Equal(t, StatementEvent, statements[0].Kind)
	assert.Equal(t, "agent.Greet", statements[0].Call.Function)
	assert.Equal(t, "world", statements[0].Call.Args["name"].Text)
	assert.Equal(t, ValueString, statements[0].Call.Args["name"].Kind)
}

func TestParseEmptyBinding(t *testing.T) {
	statements, err := ParseBinding("")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(statements))
}

func TestParseUpdateList(t *testing.T) {
	statements, err := ParseBinding(
		`update: result.innerHTML = agent.Render(text={row.name}), status.value, refresh(), level: 3`,
	)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(statements))

	update := statements[0]
	assert.Equal(t, StatementUpdate, update.Kind)
	assert.Equal(t, 3, len(update.Items))

	assert.Equal(t, "result.innerHTML", update.Items[0].Target)
	assert.Equal(t, "agent.Render", update.Items[0].Call.Function)
	assert.Equal(t, "{row.name}", update.Items[0].Call.Args["text"].Wire())

	// a bare target re-sends unchanged
	assert.Equal(t, "status.value", update.Items[1].Target)
	assert.Equal(t, nil, update.Items[1].Call)
	assert.Equal(t, nil, update.Items[1].Value)

	// a bare call runs a task with no stored target
	assert.Equal(t, "", update.Items[2].Target)
	assert.Equal(t, "refresh", update.Items[2].Call.Function)

	parameter := statements[1]
	assert.Equal(t, StatementParameter, parameter.Kind)
	assert.Equal(t, "level", parameter.Key)
	assert.Equal(t, "3", parameter.Value.Text)
}

func TestParseDownload(t *testing.T) {
	statements, err := ParseBinding(
		`download: document(title="report"), files(source=documents)`,
	)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(statements))
	assert.Equal(t, StatementDownload, statements[0].Kind)
	assert.Equal(t, "report", statements[0].Document.Args["title"].Text)
	assert.Equal(t, ValueIdent, statements[0].Files.Args["source"].Kind)
	assert.Equal(t, "documents", statements[0].Files.Args["source"].Text)
}

func TestParseSelectorAndArray(t *testing.T) {
	statements, err := ParseBinding(`event: f(rows=[table1.selected], cols=[a,b], one=[a])`)
	assert.Equal(t, nil, err)

	args := statements[0].Call.Args
	assert.Equal(t, ValueSelector, args["rows"].Kind)
	assert.Equal(t, "[table1.selected]", args["rows"].Wire())
	assert.Equal(t, ValueArray, args["cols"].Kind)
	assert.Equal(t, []string{"a", "b"}, args["cols"].Names)
	// a single bracketed name is a selector, not a one-element array
	assert.Equal(t, ValueSelector, args["one"].Kind)
}

func TestParseSetenv(t *testing.T) {
	statements, err := ParseBinding(`env.display: "plain", caption: "Files"`)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(statements))
	assert.Equal(t, StatementSetenv, statements[0].Kind)
	assert.Equal(t, "env.display", statements[0].Key)
	assert.Equal(t, StatementParameter, statements[1].Kind)
	assert.Equal(t, "caption", statements[1].Key)
}

func TestParseErrors(t *testing.T) {
	for _, source := range []string{
		`event:`,
		`update: a.b =`,
		`event: f(a=1, a=2)`,
		`event: f(a="unterminated`,
		`download: files(source=a), document(title="x")`,
		`update: a.b = 1 extra`,
		`?`,
	} {
		_, err := ParseBinding(source)
		assert.NotEqual(t, nil, err)
		grammarErr, ok := err.(*GrammarError)
		assert.Equal(t, true, ok)
		assert.NotEqual(t, "", grammarErr.Error())
	}
}

func TestCompileBinding(t *testing.T) {
	statements, err := ParseBinding(
		`event: service.Run(path={item.path}), style: color = "red", caption: "Files"`,
	)
	assert.Equal(t, nil, err)

	compiled := CompileBinding(statements, "elem1")
	expected := map[string]any{
		"call": map[string]any{
			"function": "service.Run",
			"args": map[string]any{
				"path": "{item.path}",
			},
			"id": "elem1",
		},
		"style": map[string]any{
			"color": "red",
		},
		"caption": "Files",
	}
	if diff := cmp.Diff(expected, compiled); diff != "" {
		t.Fatalf("compiled binding mismatch: %s", diff)
	}
}

func TestCompileUpdateItems(t *testing.T) {
	statements, err := ParseBinding(`onload: out.innerHTML = agent.List(), refresh()`)
	assert.Equal(t, nil, err)

	compiled := CompileBinding(statements, "elem1")
	onload, ok := compiled["onload"].(map[string]any)
	assert.Equal(t, true, ok)
	assert.Equal(t, 2, len(onload))
	assert.NotEqual(t, nil, onload["out.innerHTML"])
	assert.NotEqual(t, nil, onload["refresh"])
}
