// Package codec converts notes to and from their on-disk textual form:
// YAML front matter between --- fences followed by the markdown body, with
// an additional marker-delimited container format for grouped files.
package codec

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

// TimeLayout is the canonical timestamp form. Fixed width and UTC, so
// lexicographic comparison of two timestamps equals time comparison.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// parseLayouts are accepted on input. Foreign files often carry RFC3339 or
// bare ISO timestamps; they are re-emitted in TimeLayout on the next write.
var parseLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

const fence = "---"

// Codec encodes and decodes note records. The clock is injected so that
// parse-time defaults ("now") are deterministic under test; the codec never
// reads ambient process state.
type Codec struct {
	now func() time.Time
}

// New creates a Codec using the given clock.
func New(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{now: now}
}

// Timestamp returns the current time in TimeLayout.
func (c *Codec) Timestamp() string {
	return c.now().UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp, accepting the canonical layout plus
// common ISO variants found in foreign files.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("codec: unrecognized timestamp %q", s)
}

// Slug derives a fallback note id from a file path: the filename stem.
func Slug(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// frontMatter fixes the serialized field order: id, module, title, created,
// modified, then tags/properties/links only when non-empty.
type frontMatter struct {
	ID         string         `yaml:"id"`
	Module     string         `yaml:"module"`
	Title      string         `yaml:"title"`
	Created    string         `yaml:"created"`
	Modified   string         `yaml:"modified"`
	Tags       []string       `yaml:"tags,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Links      []linkMeta     `yaml:"links,omitempty"`
}

type linkMeta struct {
	Target  string `yaml:"target"`
	Type    string `yaml:"type,omitempty"`
	Context string `yaml:"context,omitempty"`
}

// Encode serializes a single note: front matter, blank line, body, trailing
// newline. Decode(Encode(n)) reproduces n exactly.
func (c *Codec) Encode(n models.Note) ([]byte, error) {
	fm := frontMatter{
		ID:         n.ID,
		Module:     n.Module,
		Title:      n.Title,
		Created:    n.Created,
		Modified:   n.Modified,
		Tags:       n.Tags,
		Properties: n.Properties,
	}
	for _, l := range n.Links {
		fm.Links = append(fm.Links, linkMeta{Target: l.Target, Type: l.Type, Context: l.Context})
	}

	meta, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, &apperr.DecodeError{NoteID: n.ID, Err: fmt.Errorf("marshal front matter: %w", err)}
	}

	var b bytes.Buffer
	b.WriteString(fence + "\n")
	b.Write(meta)
	b.WriteString(fence + "\n\n")
	b.WriteString(n.Content)
	b.WriteString("\n")
	return b.Bytes(), nil
}

// Decode parses a single-note record. fallbackID (typically the filename
// stem) seeds the id and title when the record has no front matter; in that
// case the whole content becomes the body, the module defaults, and both
// timestamps are stamped from the injected clock. A present but malformed
// metadata block is a DecodeError; the fallback is only for files with no
// metadata block at all.
func (c *Codec) Decode(data []byte, fallbackID string) (models.Note, error) {
	meta, body, ok := splitFrontMatter(data)
	if !ok {
		return c.fallbackNote(data, fallbackID), nil
	}

	var fm frontMatter
	if err := yaml.Unmarshal(meta, &fm); err != nil {
		return models.Note{}, &apperr.DecodeError{NoteID: fallbackID, Err: fmt.Errorf("invalid front matter: %w", err)}
	}
	return c.buildNote(fm, body, fallbackID), nil
}

// splitFrontMatter separates the metadata block from the body. ok is false
// when no complete fence pair is present.
func splitFrontMatter(data []byte) (meta []byte, body string, ok bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(fence+"\n")) {
		return nil, "", false
	}
	rest := trimmed[len(fence)+1:]

	closing := []byte("\n" + fence + "\n")
	idx := bytes.Index(rest, closing)
	if idx < 0 {
		if bytes.HasSuffix(rest, []byte("\n"+fence)) {
			return rest[:len(rest)-len(fence)-1], "", true
		}
		return nil, "", false
	}

	after := string(rest[idx+len(closing):])
	after = strings.TrimPrefix(after, "\n")
	after = strings.TrimSuffix(after, "\n")
	return rest[:idx], after, true
}

func (c *Codec) fallbackNote(data []byte, fallbackID string) models.Note {
	now := c.Timestamp()
	title := fallbackID
	if title == "" {
		title = models.DefaultTitle
	}
	return models.Note{
		ID:       fallbackID,
		Module:   models.DefaultModule,
		Title:    title,
		Content:  strings.TrimSuffix(string(data), "\n"),
		Created:  now,
		Modified: now,
	}
}

func (c *Codec) buildNote(fm frontMatter, body, fallbackID string) models.Note {
	n := models.Note{
		ID:         fm.ID,
		Module:     fm.Module,
		Title:      fm.Title,
		Content:    body,
		Created:    fm.Created,
		Modified:   fm.Modified,
		Tags:       dedupe(fm.Tags),
		Properties: fm.Properties,
	}
	for _, l := range fm.Links {
		n.Links = append(n.Links, models.Link{Target: l.Target, Type: l.Type, Context: l.Context})
	}
	if n.ID == "" {
		n.ID = fallbackID
	}
	if n.Created == "" {
		n.Created = c.Timestamp()
	}
	if n.Modified == "" {
		n.Modified = n.Created
	}
	n.Normalize()
	return n
}

// dedupe collapses duplicate tags, keeping first-seen order.
func dedupe(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0]
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
