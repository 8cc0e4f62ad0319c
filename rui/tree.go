package rui

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// The interpreter and the subtree machine never touch a real DOM. They work
// against this addressing capability, so they can run against the in-memory
// tree below or any other implementation.

type Node interface {
	TagName() string
	Id() string
	Attr(name string) (string, bool)
	SetAttr(name string, value string)
	Style(name string) string
	SetStyle(name string, value string)
	Content() string
	SetContent(markup string) error
	FirstChildNamed(tag string) Node
	Children() []Node
	Parent() Node
	NextSibling() Node
}

type ElementTree interface {
	ResolveId(id string) Node
	CreateElement(tag string) Node
	InsertAfter(anchor Node, node Node) error
	AppendChild(parent Node, child Node) error
	Remove(node Node) error
	Markup() string
}

// MemoryTree is the live element tree on the client side and the test double
// for the interpreter. Markup content is parsed with the html fragment parser
// so nested table regions stay addressable.
type MemoryTree struct {
	root *MemoryElement
	ids  map[string]*MemoryElement
}

func NewMemoryTree(markup string) (*MemoryTree, error) {
	tree := &MemoryTree{
		ids: map[string]*MemoryElement{},
	}
	root := &MemoryElement{
		tree: tree,
		tag:  "body",
	}
	tree.root = root
	if markup != "" {
		if err := root.SetContent(markup); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func (self *MemoryTree) Root() Node {
	return self.root
}

func (self *MemoryTree) ResolveId(id string) Node {
	element, ok := self.ids[id]
	if !ok {
		return nil
	}
	return element
}

func (self *MemoryTree) CreateElement(tag string) Node {
	return &MemoryElement{
		tree: self,
		tag:  tag,
	}
}

func (self *MemoryTree) InsertAfter(anchor Node, node Node) error {
	anchorElement, err := self.own(anchor)
	if err != nil {
		return err
	}
	element, err := self.own(node)
	if err != nil {
		return err
	}
	parent := anchorElement.parent
	if parent == nil {
		return fmt.Errorf("Anchor has no parent.")
	}
	for i, child := range parent.children {
		if child == anchorElement {
			children := append([]*MemoryElement{}, parent.children[:i+1]...)
			children = append(children, element)
			children = append(children, parent.children[i+1:]...)
			parent.children = children
			element.parent = parent
			self.register(element)
			return nil
		}
	}
	return fmt.Errorf("Anchor is detached.")
}

func (self *MemoryTree) AppendChild(parent Node, child Node) error {
	parentElement, err := self.own(parent)
	if err != nil {
		return err
	}
	element, err := self.own(child)
	if err != nil {
		return err
	}
	parentElement.children = append(parentElement.children, element)
	element.parent = parentElement
	self.register(element)
	return nil
}

func (self *MemoryTree) Remove(node Node) error {
	element, err := self.own(node)
	if err != nil {
		return err
	}
	parent := element.parent
	if parent == nil {
		return fmt.Errorf("Node is detached.")
	}
	for i, child := range parent.children {
		if child == element {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			element.parent = nil
			self.forget(element)
			return nil
		}
	}
	return fmt.Errorf("Node is detached.")
}

func (self *MemoryTree) Markup() string {
	out := &strings.Builder{}
	for _, child := range self.root.children {
		child.render(out)
	}
	return out.String()
}

func (self *MemoryTree) own(node Node) (*MemoryElement, error) {
	element, ok := node.(*MemoryElement)
	if !ok || element.tree != self {
		return nil, fmt.Errorf("Node belongs to a different tree.")
	}
	return element, nil
}

func (self *MemoryTree) register(element *MemoryElement) {
	if id := element.Id(); id != "" {
		self.ids[id] = element
	}
	for _, child := range element.children {
		self.register(child)
	}
}

func (self *MemoryTree) forget(element *MemoryElement) {
	if id := element.Id(); id != "" {
		delete(self.ids, id)
	}
	for _, child := range element.children {
		self.forget(child)
	}
}

type MemoryElement struct {
	tree     *MemoryTree
	tag      string
	attrs    map[string]string
	styles   map[string]string
	text     string
	children []*MemoryElement
	parent   *MemoryElement
}

func (self *MemoryElement) TagName() string {
	return self.tag
}

func (self *MemoryElement) Id() string {
	if self.attrs == nil {
		return ""
	}
	return self.attrs["id"]
}

func (self *MemoryElement) Attr(name string) (string, bool) {
	if self.attrs == nil {
		return "", false
	}
	value, ok := self.attrs[name]
	return value, ok
}

func (self *MemoryElement) SetAttr(name string, value string) {
	if self.attrs == nil {
		self.attrs = map[string]string{}
	}
	previous := self.attrs[name]
	self.attrs[name] = value
	if name == "id" && self.tree != nil {
		if previous != "" {
			delete(self.tree.ids, previous)
		}
		if value != "" {
			self.tree.ids[value] = self
		}
	}
}

func (self *MemoryElement) Style(name string) string {
	if self.styles == nil {
		return ""
	}
	return self.styles[name]
}

func (self *MemoryElement) SetStyle(name string, value string) {
	if self.styles == nil {
		self.styles = map[string]string{}
	}
	self.styles[name] = value
}

func (self *MemoryElement) Content() string {
	out := &strings.Builder{}
	out.WriteString(self.text)
	for _, child := range self.children {
		child.render(out)
	}
	return out.String()
}

// SetContent replaces the element's markup content. The fragment is parsed in
// the context of this element's tag so table sections keep their structure.
func (self *MemoryElement) SetContent(markup string) error {
	for _, child := range self.children {
		if self.tree != nil {
			self.tree.forget(child)
		}
		child.parent = nil
	}
	self.children = nil
	self.text = ""

	context := &html.Node{
		Type:     html.ElementNode,
		Data:     self.tag,
		DataAtom: atom.Lookup([]byte(self.tag)),
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		self.adopt(node)
	}
	if self.tree != nil {
		self.tree.register(self)
	}
	return nil
}

func (self *MemoryElement) adopt(node *html.Node) {
	switch node.Type {
	case html.TextNode:
		self.text += node.Data
	case html.ElementNode:
		child := &MemoryElement{
			tree:   self.tree,
			tag:    node.Data,
			parent: self,
		}
		for _, attr := range node.Attr {
			if attr.Key == "style" {
				child.styles = parseStyleAttr(attr.Val)
				continue
			}
			if child.attrs == nil {
				child.attrs = map[string]string{}
			}
			child.attrs[attr.Key] = attr.Val
		}
		for grandchild := node.FirstChild; grandchild != nil; grandchild = grandchild.NextSibling {
			child.adopt(grandchild)
		}
		self.children = append(self.children, child)
	}
}

func (self *MemoryElement) FirstChildNamed(tag string) Node {
	for _, child := range self.children {
		if child.tag == tag {
			return child
		}
	}
	return nil
}

func (self *MemoryElement) Children() []Node {
	children := make([]Node, len(self.children))
	for i, child := range self.children {
		children[i] = child
	}
	return children
}

func (self *MemoryElement) Parent() Node {
	if self.parent == nil {
		return nil
	}
	return self.parent
}

func (self *MemoryElement) NextSibling() Node {
	if self.parent == nil {
		return nil
	}
	for i, child := range self.parent.children {
		if child == self {
			if i+1 < len(self.parent.children) {
				return self.parent.children[i+1]
			}
			return nil
		}
	}
	return nil
}

func (self *MemoryElement) render(out *strings.Builder) {
	out.WriteString("<")
	out.WriteString(self.tag)
	names := []string{}
	for name := range self.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, " %s=%q", name, self.attrs[name])
	}
	if 0 < len(self.styles) {
		styleNames := []string{}
		for name := range self.styles {
			styleNames = append(styleNames, name)
		}
		sort.Strings(styleNames)
		parts := []string{}
		for _, name := range styleNames {
			parts = append(parts, fmt.Sprintf("%s:%s", name, self.styles[name]))
		}
		fmt.Fprintf(out, " style=%q", strings.Join(parts, ";"))
	}
	out.WriteString(">")
	out.WriteString(self.text)
	for _, child := range self.children {
		child.render(out)
	}
	fmt.Fprintf(out, "</%s>", self.tag)
}

func parseStyleAttr(value string) map[string]string {
	styles := map[string]string{}
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, propertyValue, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		styles[strings.TrimSpace(name)] = strings.TrimSpace(propertyValue)
	}
	return styles
}
