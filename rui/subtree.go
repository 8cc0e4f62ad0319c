package rui

import (
	"strconv"
)

// Attributes the subtree machine leaves on the live tree. The synthetic row
// carries the anchor id so collapse can match it by sibling tag.
const (
	AttrSubtreeOwner  = "data-rui-subtree"
	AttrExpandedState = "data-rui-expanded"
)

// SubtreeController manages the synthetic row that represents an expanded
// subtree under a tree node. At most one synthetic row exists per anchor.
type SubtreeController struct {
	tree ElementTree
}

func NewSubtreeController(tree ElementTree) *SubtreeController {
	return &SubtreeController{
		tree: tree,
	}
}

// Collapse removes the immediately following sibling if it is tagged as
// belonging to this anchor, otherwise it is a no-op. Always leaves the anchor
// collapsed.
func (self *SubtreeController) Collapse(anchor Node) error {
	sibling := anchor.NextSibling()
	if sibling != nil {
		if owner, ok := sibling.Attr(AttrSubtreeOwner); ok && owner == anchor.Id() {
			if err := self.tree.Remove(sibling); err != nil {
				return err
			}
		}
	}
	anchor.SetAttr(AttrExpandedState, "false")
	return nil
}

// Expand inserts the synthetic row for the descriptor immediately after the
// anchor. A descriptor without a template collapses, an empty tbody is a
// no-op (a suppressed redundant expand). An already expanded anchor is
// collapsed first, so a second expand replaces the prior row.
func (self *SubtreeController) Expand(anchor Node, descriptor *SubtreeDescriptor) error {
	if descriptor == nil || descriptor.Template == "" {
		return self.Collapse(anchor)
	}
	if descriptor.Tbody == "" {
		return nil
	}
	if err := self.Collapse(anchor); err != nil {
		return err
	}

	// one new row spanning all existing columns plus one
	row := self.tree.CreateElement("tr")
	row.SetAttr(AttrSubtreeOwner, anchor.Id())
	cell := self.tree.CreateElement("td")
	cell.SetAttr("colspan", strconv.Itoa(len(anchor.Children())+1))
	if err := cell.SetContent(descriptor.Template); err != nil {
		return err
	}

	if table := cell.FirstChildNamed("table"); table != nil {
		if caption := table.FirstChildNamed("caption"); caption != nil {
			if err := self.tree.Remove(caption); err != nil {
				return err
			}
		}
		if head := table.FirstChildNamed("thead"); head != nil {
			if descriptor.HasSection("thead") {
				if err := head.SetContent(descriptor.Thead); err != nil {
					return err
				}
			} else if err := self.tree.Remove(head); err != nil {
				return err
			}
		}
		if foot := table.FirstChildNamed("tfoot"); foot != nil {
			if descriptor.HasSection("tfoot") {
				if err := foot.SetContent(descriptor.Tfoot); err != nil {
					return err
				}
			} else if err := self.tree.Remove(foot); err != nil {
				return err
			}
		}
		if body := table.FirstChildNamed("tbody"); body != nil {
			if err := body.SetContent(descriptor.Tbody); err != nil {
				return err
			}
		}
	}

	if err := self.tree.AppendChild(row, cell); err != nil {
		return err
	}
	if err := self.tree.InsertAfter(anchor, row); err != nil {
		return err
	}
	anchor.SetAttr(AttrExpandedState, "true")
	return nil
}

// Redirect replaces the body markup of the named alternate root directly
// instead of inserting a synthetic row. An option of "this" names the anchor
// itself.
func (self *SubtreeController) Redirect(anchor Node, descriptor *SubtreeDescriptor) error {
	target := anchor
	if descriptor.Option != "this" {
		target = self.tree.ResolveId(descriptor.Option)
		if target == nil {
			return ErrTargetNotFound
		}
	}
	if body := target.FirstChildNamed("tbody"); body != nil {
		target = body
	}
	return target.SetContent(descriptor.Tbody)
}
