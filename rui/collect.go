package rui

import (
	"fmt"
	"strconv"
	"strings"
)

// Template attributes on repeated input elements. The integer index attribute
// orders the collected values.
const (
	AttrTemplateName  = "data-rui-template"
	AttrTemplateIndex = "data-rui-index"
)

// the selector pattern prefix marking a template-bound argument
const TemplateMarker = "*"

// CollectArgs resolves a call descriptor's argument mapping against the live
// tree, bundling template-repeated input fields into one ordered list for a
// single remote call:
//
//   - "*name" collects all elements under the anchor whose template attribute
//     equals name, placing each element's current value at its declared index
//     in an array sized max(index)+1
//   - "id.attr" reads the named attribute of the element with the given id
//   - anything else passes through literally
func CollectArgs(tree ElementTree, anchor Node, args map[string]any) (map[string]any, error) {
	resolved := map[string]any{}
	for name, raw := range args {
		value, ok := raw.(string)
		if !ok {
			resolved[name] = raw
			continue
		}
		switch {
		case strings.HasPrefix(value, TemplateMarker):
			values, err := collectTemplateValues(anchor, value[len(TemplateMarker):])
			if err != nil {
				return nil, err
			}
			resolved[name] = values
		case strings.Contains(value, ".") && !strings.HasPrefix(value, "{"):
			id, attr, _ := strings.Cut(value, ".")
			element := tree.ResolveId(id)
			if element == nil {
				return nil, fmt.Errorf("No element %q for argument %q.", id, name)
			}
			attrValue, _ := element.Attr(attr)
			resolved[name] = attrValue
		default:
			resolved[name] = value
		}
	}
	return resolved, nil
}

func collectTemplateValues(anchor Node, templateName string) ([]string, error) {
	if anchor == nil {
		return nil, fmt.Errorf("No anchor element for template %q.", templateName)
	}
	matches := []Node{}
	var walk func(node Node)
	walk = func(node Node) {
		for _, child := range node.Children() {
			if name, ok := child.Attr(AttrTemplateName); ok && name == templateName {
				matches = append(matches, child)
			}
			walk(child)
		}
	}
	walk(anchor)

	size := 0
	indexed := map[int]string{}
	for _, match := range matches {
		indexText, ok := match.Attr(AttrTemplateIndex)
		if !ok {
			return nil, fmt.Errorf("Template element %q has no index attribute.", templateName)
		}
		index, err := strconv.Atoi(indexText)
		if err != nil {
			return nil, err
		}
		value, _ := match.Attr("value")
		indexed[index] = value
		if size <= index {
			size = index + 1
		}
	}
	values := make([]string, size)
	for index, value := range indexed {
		values[index] = value
	}
	return values, nil
}
