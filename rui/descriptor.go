package rui

import (
	"fmt"
	"strings"
)

// The descriptor model is the typed form of the binding grammar. The server
// compiles statements into the per-element json (see `CompileBinding`) and the
// client consumes the pre-resolved json, never the grammar text itself.

type StatementKind string

const (
	StatementEvent     StatementKind = "event"
	StatementAssign    StatementKind = "assign"
	StatementUpdate    StatementKind = "update"
	StatementOnload    StatementKind = "onload"
	StatementOninit    StatementKind = "oninit"
	StatementDownload  StatementKind = "download"
	StatementTemplate  StatementKind = "template"
	StatementStyle     StatementKind = "style"
	StatementParameter StatementKind = "parameter"
	StatementSetenv    StatementKind = "setenv"
)

// exactly one kind per statement. Statements in a list are order-independent
// except update/onload item lists, which apply in source order.
type Statement struct {
	Kind StatementKind

	// event, assign, oninit, template
	Call *CallDescriptor

	// update, onload
	Items []*UpdateItem

	// download
	Document *CallDescriptor
	Files    *CallDescriptor

	// style
	Property string

	// parameter, setenv
	Key string

	// style, parameter, setenv
	Value *ValueExpr
}

type CallDescriptor struct {
	// dot-joined qualified name
	Function string
	Args     map[string]*ValueExpr
}

// one item of an update/onload list. Shapes:
//   - bare target (re-send unchanged): Target set, Value and Call nil
//   - target = value: Target and Value set
//   - target = function(args): Target and Call set
//   - function(args): Call set, Target empty (run a task with no stored target)
type UpdateItem struct {
	Target string
	Value  *ValueExpr
	Call   *CallDescriptor
}

type ValueKind string

const (
	ValueIdent     ValueKind = "ident"
	ValueQualified ValueKind = "qualified"
	ValueString    ValueKind = "string"
	ValueNumber    ValueKind = "number"
	ValueFormat    ValueKind = "format"
	ValueSelector  ValueKind = "selector"
	ValueArray     ValueKind = "array"
	ValueCall      ValueKind = "call"
)

type ValueExpr struct {
	Kind ValueKind

	// ident, string, number
	Text string

	// qualified, format, selector. A format wildcard is the single segment "*"
	Path []string

	// array literal of identifier names (not resolved paths)
	Names []string

	Call *CallDescriptor
}

// Wire renders the value the way the compiled element json carries it.
// Format references keep their braces so the server can substitute the
// current value at evaluation time.
func (self *ValueExpr) Wire() any {
	switch self.Kind {
	case ValueIdent, ValueString, ValueNumber:
		return self.Text
	case ValueQualified:
		return strings.Join(self.Path, ".")
	case ValueFormat:
		return fmt.Sprintf("{%s}", strings.Join(self.Path, "."))
	case ValueSelector:
		return fmt.Sprintf("[%s]", strings.Join(self.Path, "."))
	case ValueArray:
		return append([]string{}, self.Names...)
	case ValueCall:
		return self.Call.Wire()
	default:
		return ""
	}
}

func (self *CallDescriptor) Wire() map[string]any {
	args := map[string]any{}
	for name, value := range self.Args {
		args[name] = value.Wire()
	}
	return map[string]any{
		"function": self.Function,
		"args":     args,
	}
}

// CompileBinding merges the parsed statements of one element into the json
// object stored on the element, keyed by statement role. The `id` names the
// root element the compiled calls report back with.
func CompileBinding(statements []*Statement, id string) map[string]any {
	compiled := map[string]any{}
	for _, statement := range statements {
		switch statement.Kind {
		case StatementEvent, StatementOninit:
			call := statement.Call.Wire()
			call["id"] = id
			compiled["call"] = call
		case StatementAssign:
			call := statement.Call.Wire()
			call["id"] = id
			compiled["assign"] = call
		case StatementUpdate, StatementOnload:
			items := map[string]any{}
			for _, item := range statement.Items {
				switch {
				case item.Call != nil && item.Target == "":
					items[item.Call.Function] = item.Call.Wire()
				case item.Call != nil:
					items[item.Target] = item.Call.Wire()
				case item.Value != nil:
					items[item.Target] = item.Value.Wire()
				default:
					items[item.Target] = item.Target
				}
			}
			compiled[string(statement.Kind)] = items
		case StatementDownload:
			compiled["download"] = map[string]any{
				"document": statement.Document.Wire(),
				"files":    statement.Files.Wire(),
			}
		case StatementTemplate:
			compiled["template"] = statement.Call.Function
		case StatementStyle:
			compiled["style"] = map[string]any{statement.Property: statement.Value.Wire()}
		case StatementParameter, StatementSetenv:
			compiled[statement.Key] = statement.Value.Wire()
		}
	}
	return compiled
}

// SubtreeDescriptor is the payload of a subtree update operation. Absence of
// `template` signals collapse, an empty `tbody` signals no-op. `option` is a
// set-membership string naming the populated optional sections.
type SubtreeDescriptor struct {
	Template string `json:"template,omitempty"`
	Option   string `json:"option,omitempty"`
	Thead    string `json:"thead,omitempty"`
	Tbody    string `json:"tbody,omitempty"`
	Tfoot    string `json:"tfoot,omitempty"`
}

func (self *SubtreeDescriptor) HasSection(section string) bool {
	for _, member := range strings.Fields(self.Option) {
		if member == section {
			return true
		}
	}
	return false
}
