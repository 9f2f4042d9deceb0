// Package models defines the domain types for Commonplace.
package models

// Defaults applied when a record omits the corresponding metadata field.
const (
	DefaultModule   = "default"
	DefaultTitle    = "Untitled"
	DefaultLinkType = "reference"
)

// Note is the atomic unit of the store: front-matter metadata plus a
// markdown body. Timestamps are fixed-width UTC strings (codec.TimeLayout)
// so that string order equals time order.
type Note struct {
	ID         string         `json:"id"`
	Module     string         `json:"module"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Created    string         `json:"created"`
	Modified   string         `json:"modified"`
	Tags       []string       `json:"tags,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Links      []Link         `json:"links,omitempty"`
}

// Link is a typed, directed edge from the owning note to Target. Target may
// reference a note that does not exist yet; forward references are allowed.
type Link struct {
	Target  string `json:"target"`
	Type    string `json:"type"`
	Context string `json:"context,omitempty"`
}

// Edge is a fully-qualified link row as stored in the index. It carries the
// source id so that backlink queries return complete edges.
type Edge struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Type    string `json:"type"`
	Context string `json:"context,omitempty"`
}

// Normalize fills defaulted fields in place: module, title, link types.
// It does not touch id or timestamps; those belong to the note store.
func (n *Note) Normalize() {
	if n.Module == "" {
		n.Module = DefaultModule
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	for i := range n.Links {
		if n.Links[i].Type == "" {
			n.Links[i].Type = DefaultLinkType
		}
	}
}
