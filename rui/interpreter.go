package rui

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// an update operation whose path resolves to no element
var ErrTargetNotFound = errors.New("target not found")

// Interpreter applies inbound update operations to the element tree. Failure
// policy is best effort, keep going: one malformed operation never aborts a
// batch or the connection.
type Interpreter struct {
	tree     ElementTree
	subtree  *SubtreeController
	registry *Registry
}

func NewInterpreter(tree ElementTree, registry *Registry) *Interpreter {
	return &Interpreter{
		tree:     tree,
		subtree:  NewSubtreeController(tree),
		registry: registry,
	}
}

// ApplyBatch applies the operations strictly in array order, catching each
// operation's failure at the per-operation boundary. It returns the distinct
// root element ids that resolved, in first-touched order, so the caller can
// fire one consolidated notification per root.
func (self *Interpreter) ApplyBatch(operations []*UpdateOperation) []string {
	roots := []string{}
	seen := map[string]bool{}
	for _, operation := range operations {
		if operation.Type == UpdateTypeJavascript {
			// side-channel instruction for a registered handler, no addressing
			if err := self.dispatch(operation); err != nil {
				glog.Infof("[ui]handler %s error = %s\n", operation.Target, err)
			}
			continue
		}
		root, err := self.Apply(operation)
		if err != nil {
			glog.Infof("[ui]update %s error = %s\n", operation.Target, err)
		}
		if root != "" && !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	return roots
}

// registered handlers run at the same per-operation isolation boundary as
// tree operations
func (self *Interpreter) dispatch(operation *UpdateOperation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Handler panic: %v", r)
		}
	}()

	self.registry.Dispatch(operation)
	return nil
}

// Apply applies one operation and returns the id of the root element it
// touched. The root is reported as soon as it resolved, even when a later
// step of the same operation failed.
func (self *Interpreter) Apply(operation *UpdateOperation) (rootId string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Update operation panic: %v", r)
		}
	}()

	parts := strings.Split(operation.Target, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("Target must name a root and an attribute: %q", operation.Target)
	}
	root := parts[0]
	attr := parts[len(parts)-1]
	path := parts[1 : len(parts)-1]

	element := self.tree.ResolveId(root)
	if element == nil {
		glog.Infof("[ui]target not found %s\n", operation.Target)
		return "", nil
	}

	if attr == "subtree" {
		for _, segment := range path {
			element = element.FirstChildNamed(segment)
			if element == nil {
				glog.Infof("[ui]target not found %s\n", operation.Target)
				return root, nil
			}
		}
		descriptor, err := operation.Subtree()
		if err != nil {
			return root, err
		}
		if descriptor.Template == "" && descriptor.Tbody != "" && descriptor.Option != "" {
			return root, self.subtree.Redirect(element, descriptor)
		}
		return root, self.subtree.Expand(element, descriptor)
	}

	for i, segment := range path {
		if segment == "style" {
			property := attr
			if i+1 < len(path) {
				property = path[i+1]
			}
			element.SetStyle(property, operation.ValueString())
			return root, nil
		}
		element = element.FirstChildNamed(segment)
		if element == nil {
			glog.Infof("[ui]target not found %s\n", operation.Target)
			return root, nil
		}
	}

	value := operation.ValueString()

	// a bare style attribute carries css declaration text
	if attr == "style" {
		for name, propertyValue := range parseStyleAttr(value) {
			element.SetStyle(name, propertyValue)
		}
		return root, nil
	}

	// fixed convention, not content-type sniffed
	if element.TagName() == "img" && attr != "innerHTML" {
		element.SetAttr("src", "data:image/png;base64,"+value)
		return root, nil
	}

	if operation.Type == UpdateTypeBase64 {
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return root, err
		}
		value = string(decoded)
	}

	if attr == "innerHTML" {
		return root, element.SetContent(value)
	}
	element.SetAttr(attr, value)
	return root, nil
}
