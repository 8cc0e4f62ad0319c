package rui

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewElementId returns a short unique id for a generated element. The suffix
// of the ulid carries the entropy; the short form keeps attribute values
// compact.
func NewElementId() string {
	text := strings.ToLower(ulid.Make().String())
	return text[len(text)-8:]
}
