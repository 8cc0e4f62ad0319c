package rui

import (
	"fmt"
	"strings"
)

// The binding grammar is the small declarative language embedded in element
// attributes. Parsing is pure and stateless: attribute text in, ordered
// statement list out. Dispatch is keyword-first, never backtracking across
// statement kinds.

type GrammarError struct {
	Offset  int
	Token   string
	Message string
}

func (self *GrammarError) Error() string {
	if self.Token == "" {
		return fmt.Sprintf("binding grammar error at %d: %s", self.Offset, self.Message)
	}
	return fmt.Sprintf("binding grammar error at %d near %q: %s", self.Offset, self.Token, self.Message)
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenNumber
	tokenPunct
	tokenEnd
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

var statementKeywords = map[string]bool{
	"event":     true,
	"assign":    true,
	"update":    true,
	"onload":    true,
	"oninit":    true,
	"post_init": true,
	"download":  true,
	"template":  true,
	"style":     true,
}

// ParseBinding parses the attribute text of one element into its ordered
// statement list. An empty attribute yields an empty list.
func ParseBinding(source string) ([]*Statement, error) {
	tokens, err := lexBinding(source)
	if err != nil {
		return nil, err
	}
	parser := &bindingParser{
		tokens: tokens,
	}
	statements := []*Statement{}
	if parser.peek().kind == tokenEnd {
		return statements, nil
	}
	for {
		statement, err := parser.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, statement)
		if parser.peek().kind == tokenPunct && parser.peek().text == "," {
			parser.next()
			continue
		}
		break
	}
	if end := parser.peek(); end.kind != tokenEnd {
		return nil, parser.errorf(end, "expected end of binding")
	}
	return statements, nil
}

func lexBinding(source string) ([]token, error) {
	tokens := []token{}
	i := 0
	for i < len(source) {
		c := source[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i += 1
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			text := strings.Builder{}
			for j < len(source) && source[j] != quote {
				if source[j] == '\\' && j+1 < len(source) {
					j += 1
				}
				text.WriteByte(source[j])
				j += 1
			}
			if j == len(source) {
				return nil, &GrammarError{
					Offset:  i,
					Message: "unterminated string",
				}
			}
			tokens = append(tokens, token{
				kind:   tokenString,
				text:   text.String(),
				offset: i,
			})
			i = j + 1
		case isIdentStart(c):
			j := i
			for j < len(source) && isIdentPart(source[j]) {
				j += 1
			}
			tokens = append(tokens, token{
				kind:   tokenIdent,
				text:   source[i:j],
				offset: i,
			})
			i = j
		case isDigit(c) || (c == '-' && i+1 < len(source) && isDigit(source[i+1])):
			j := i + 1
			for j < len(source) && (isDigit(source[j]) || source[j] == '.') {
				j += 1
			}
			tokens = append(tokens, token{
				kind:   tokenNumber,
				text:   source[i:j],
				offset: i,
			})
			i = j
		case strings.ContainsRune(".,:=(){}[]*", rune(c)):
			tokens = append(tokens, token{
				kind:   tokenPunct,
				text:   string(c),
				offset: i,
			})
			i += 1
		default:
			return nil, &GrammarError{
				Offset:  i,
				Token:   string(c),
				Message: "unexpected character",
			}
		}
	}
	tokens = append(tokens, token{
		kind:   tokenEnd,
		offset: len(source),
	})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

type bindingParser struct {
	tokens []token
	pos    int
}

func (self *bindingParser) peek() token {
	return self.tokens[self.pos]
}

func (self *bindingParser) peekAt(ahead int) token {
	i := self.pos + ahead
	if len(self.tokens) <= i {
		return self.tokens[len(self.tokens)-1]
	}
	return self.tokens[i]
}

func (self *bindingParser) next() token {
	t := self.tokens[self.pos]
	if t.kind != tokenEnd {
		self.pos += 1
	}
	return t
}

func (self *bindingParser) expectPunct(text string) (token, error) {
	t := self.next()
	if t.kind != tokenPunct || t.text != text {
		return t, self.errorf(t, "expected %q", text)
	}
	return t, nil
}

func (self *bindingParser) expectIdent() (token, error) {
	t := self.next()
	if t.kind != tokenIdent {
		return t, self.errorf(t, "expected identifier")
	}
	return t, nil
}

func (self *bindingParser) errorf(t token, format string, a ...any) error {
	return &GrammarError{
		Offset:  t.offset,
		Token:   t.text,
		Message: fmt.Sprintf(format, a...),
	}
}

func (self *bindingParser) parseStatement() (*Statement, error) {
	head := self.peek()
	if head.kind != tokenIdent {
		return nil, self.errorf(head, "expected statement")
	}

	if statementKeywords[head.text] && self.peekAt(1).kind == tokenPunct && self.peekAt(1).text == ":" {
		self.next()
		self.next()
		switch head.text {
		case "event":
			call, err := self.parseCall()
			if err != nil {
				return nil, err
			}
			return &Statement{Kind: StatementEvent, Call: call}, nil
		case "assign":
			call, err := self.parseCall()
			if err != nil {
				return nil, err
			}
			return &Statement{Kind: StatementAssign, Call: call}, nil
		case "oninit", "post_init":
			call, err := self.parseCall()
			if err != nil {
				return nil, err
			}
			return &Statement{Kind: StatementOninit, Call: call}, nil
		case "update", "onload":
			kind := StatementUpdate
			if head.text == "onload" {
				kind = StatementOnload
			}
			items, err := self.parseUpdateItems()
			if err != nil {
				return nil, err
			}
			return &Statement{Kind: kind, Items: items}, nil
		case "download":
			return self.parseDownload()
		case "template":
			name, err := self.expectIdent()
			if err != nil {
				return nil, err
			}
			call := &CallDescriptor{
				Function: name.text,
				Args:     map[string]*ValueExpr{},
			}
			if self.peek().kind == tokenPunct && self.peek().text == "(" {
				args, err := self.parseCallArgs()
				if err != nil {
					return nil, err
				}
				call.Args = args
			}
			return &Statement{Kind: StatementTemplate, Call: call}, nil
		case "style":
			property, err := self.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := self.expectPunct("="); err != nil {
				return nil, err
			}
			value, err := self.parseValueExpr()
			if err != nil {
				return nil, err
			}
			return &Statement{Kind: StatementStyle, Property: property.text, Value: value}, nil
		}
	}

	// a qualified key is an environment setting, a plain key a parameter
	path, err := self.parseQualified()
	if err != nil {
		return nil, err
	}
	if _, err := self.expectPunct(":"); err != nil {
		return nil, err
	}
	value, err := self.parseValueExpr()
	if err != nil {
		return nil, err
	}
	if len(path) == 1 {
		return &Statement{Kind: StatementParameter, Key: path[0], Value: value}, nil
	}
	return &Statement{Kind: StatementSetenv, Key: strings.Join(path, "."), Value: value}, nil
}

// download nests two fixed sub-calls: document(...) and files(...)
func (self *bindingParser) parseDownload() (*Statement, error) {
	documentName, err := self.expectIdent()
	if err != nil {
		return nil, err
	}
	if documentName.text != "document" {
		return nil, self.errorf(documentName, "expected document(...)")
	}
	documentArgs, err := self.parseCallArgs()
	if err != nil {
		return nil, err
	}
	if _, err := self.expectPunct(","); err != nil {
		return nil, err
	}
	filesName, err := self.expectIdent()
	if err != nil {
		return nil, err
	}
	if filesName.text != "files" {
		return nil, self.errorf(filesName, "expected files(...)")
	}
	filesArgs, err := self.parseCallArgs()
	if err != nil {
		return nil, err
	}
	return &Statement{
		Kind: StatementDownload,
		Document: &CallDescriptor{
			Function: documentName.text,
			Args:     documentArgs,
		},
		Files: &CallDescriptor{
			Function: filesName.text,
			Args:     filesArgs,
		},
	}, nil
}

func (self *bindingParser) parseCall() (*CallDescriptor, error) {
	path, err := self.parseQualified()
	if err != nil {
		return nil, err
	}
	args, err := self.parseCallArgs()
	if err != nil {
		return nil, err
	}
	return &CallDescriptor{
		Function: strings.Join(path, "."),
		Args:     args,
	}, nil
}

func (self *bindingParser) parseCallArgs() (map[string]*ValueExpr, error) {
	if _, err := self.expectPunct("("); err != nil {
		return nil, err
	}
	args := map[string]*ValueExpr{}
	if self.peek().kind == tokenPunct && self.peek().text == ")" {
		self.next()
		return args, nil
	}
	for {
		name, err := self.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, ok := args[name.text]; ok {
			return nil, self.errorf(name, "duplicate argument")
		}
		if _, err := self.expectPunct("="); err != nil {
			return nil, err
		}
		value, err := self.parseValueExpr()
		if err != nil {
			return nil, err
		}
		args[name.text] = value
		sep := self.next()
		if sep.kind == tokenPunct && sep.text == "," {
			continue
		}
		if sep.kind == tokenPunct && sep.text == ")" {
			return args, nil
		}
		return nil, self.errorf(sep, "expected , or )")
	}
}

func (self *bindingParser) parseQualified() ([]string, error) {
	name, err := self.expectIdent()
	if err != nil {
		return nil, err
	}
	path := []string{name.text}
	for self.peek().kind == tokenPunct && self.peek().text == "." {
		self.next()
		name, err := self.expectIdent()
		if err != nil {
			return nil, err
		}
		path = append(path, name.text)
	}
	return path, nil
}

func (self *bindingParser) parseValueExpr() (*ValueExpr, error) {
	t := self.peek()
	switch {
	case t.kind == tokenString:
		self.next()
		return &ValueExpr{Kind: ValueString, Text: t.text}, nil
	case t.kind == tokenNumber:
		self.next()
		return &ValueExpr{Kind: ValueNumber, Text: t.text}, nil
	case t.kind == tokenPunct && t.text == "{":
		return self.parseFormat()
	case t.kind == tokenPunct && t.text == "[":
		return self.parseBracket()
	case t.kind == tokenIdent:
		path, err := self.parseQualified()
		if err != nil {
			return nil, err
		}
		if self.peek().kind == tokenPunct && self.peek().text == "(" {
			args, err := self.parseCallArgs()
			if err != nil {
				return nil, err
			}
			return &ValueExpr{
				Kind: ValueCall,
				Call: &CallDescriptor{
					Function: strings.Join(path, "."),
					Args:     args,
				},
			}, nil
		}
		if len(path) == 1 {
			return &ValueExpr{Kind: ValueIdent, Text: path[0]}, nil
		}
		return &ValueExpr{Kind: ValueQualified, Path: path}, nil
	default:
		return nil, self.errorf(t, "expected value")
	}
}

// a format reference is {a.b} or the wildcard {*}
func (self *bindingParser) parseFormat() (*ValueExpr, error) {
	if _, err := self.expectPunct("{"); err != nil {
		return nil, err
	}
	if self.peek().kind == tokenPunct && self.peek().text == "*" {
		self.next()
		if _, err := self.expectPunct("}"); err != nil {
			return nil, err
		}
		return &ValueExpr{Kind: ValueFormat, Path: []string{"*"}}, nil
	}
	path, err := self.parseQualified()
	if err != nil {
		return nil, err
	}
	if _, err := self.expectPunct("}"); err != nil {
		return nil, err
	}
	return &ValueExpr{Kind: ValueFormat, Path: path}, nil
}

// brackets hold either a selector path [a.b] or an array literal [a,b,c]
func (self *bindingParser) parseBracket() (*ValueExpr, error) {
	if _, err := self.expectPunct("["); err != nil {
		return nil, err
	}
	first, err := self.expectIdent()
	if err != nil {
		return nil, err
	}
	t := self.peek()
	if t.kind == tokenPunct && t.text == "," {
		names := []string{first.text}
		for self.peek().kind == tokenPunct && self.peek().text == "," {
			self.next()
			name, err := self.expectIdent()
			if err != nil {
				return nil, err
			}
			names = append(names, name.text)
		}
		if _, err := self.expectPunct("]"); err != nil {
			return nil, err
		}
		return &ValueExpr{Kind: ValueArray, Names: names}, nil
	}
	path := []string{first.text}
	for self.peek().kind == tokenPunct && self.peek().text == "." {
		self.next()
		name, err := self.expectIdent()
		if err != nil {
			return nil, err
		}
		path = append(path, name.text)
	}
	if _, err := self.expectPunct("]"); err != nil {
		return nil, err
	}
	return &ValueExpr{Kind: ValueSelector, Path: path}, nil
}

func (self *bindingParser) parseUpdateItems() ([]*UpdateItem, error) {
	items := []*UpdateItem{}
	for {
		item, err := self.parseUpdateItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if self.peek().kind == tokenPunct && self.peek().text == "," && !self.statementFollows(1) {
			self.next()
			continue
		}
		return items, nil
	}
}

// statementFollows reports whether the tokens starting at `ahead` open a new
// statement rather than another update item. Update items never contain a
// colon, so a (possibly qualified) name followed by a colon ends the list.
func (self *bindingParser) statementFollows(ahead int) bool {
	if self.peekAt(ahead).kind != tokenIdent {
		return false
	}
	i := ahead + 1
	for self.peekAt(i).kind == tokenPunct && self.peekAt(i).text == "." && self.peekAt(i+1).kind == tokenIdent {
		i += 2
	}
	return self.peekAt(i).kind == tokenPunct && self.peekAt(i).text == ":"
}

func (self *bindingParser) parseUpdateItem() (*UpdateItem, error) {
	path, err := self.parseQualified()
	if err != nil {
		return nil, err
	}
	target := strings.Join(path, ".")

	t := self.peek()
	if t.kind == tokenPunct && t.text == "(" {
		// a bare function call runs a task with no stored target
		args, err := self.parseCallArgs()
		if err != nil {
			return nil, err
		}
		return &UpdateItem{
			Call: &CallDescriptor{
				Function: target,
				Args:     args,
			},
		}, nil
	}
	if t.kind == tokenPunct && t.text == "=" {
		self.next()
		value, err := self.parseValueExpr()
		if err != nil {
			return nil, err
		}
		if value.Kind == ValueCall {
			return &UpdateItem{
				Target: target,
				Call:   value.Call,
			}, nil
		}
		return &UpdateItem{
			Target: target,
			Value:  value,
		}, nil
	}
	return &UpdateItem{
		Target: target,
	}, nil
}
