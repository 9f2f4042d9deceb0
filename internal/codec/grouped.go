package codec

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

// Grouped container files wrap every record in a start/end marker pair
// carrying the note id. Anything outside the markers (headers, stray prose)
// is ignored by the parser.
var (
	startMarkerRe = regexp.MustCompile(`<!-- NOTE_START: (.+?) -->`)
	endMarkerRe   = regexp.MustCompile(`<!-- NOTE_END: (.+?) -->`)
)

func startMarker(id string) string { return fmt.Sprintf("<!-- NOTE_START: %s -->", id) }
func endMarker(id string) string   { return fmt.Sprintf("<!-- NOTE_END: %s -->", id) }

// IsGrouped reports whether data looks like a container file.
func IsGrouped(data []byte) bool {
	return startMarkerRe.Match(data)
}

// EncodeGroup serializes notes into one container file, preserving the order
// given. Markers are regenerated from each note's id.
func (c *Codec) EncodeGroup(notes []models.Note) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Notes file (%d notes)\n\n", len(notes))

	for _, n := range notes {
		record, err := c.Encode(n)
		if err != nil {
			return nil, err
		}
		b.WriteString(startMarker(n.ID) + "\n")
		b.Write(record)
		b.WriteString(endMarker(n.ID) + "\n\n")
	}
	return b.Bytes(), nil
}

// DecodeGroup parses a container file. Malformed sections are skipped and
// reported individually; the remainder of the file is still parsed. Start
// and end markers must carry the same id for a section to be valid.
func (c *Codec) DecodeGroup(data []byte) ([]models.Note, []*apperr.DecodeError) {
	var (
		notes    []models.Note
		failures []*apperr.DecodeError
	)

	pos := 0
	for {
		s := startMarkerRe.FindSubmatchIndex(data[pos:])
		if s == nil {
			break
		}
		id := string(data[pos+s[2] : pos+s[3]])
		sectionStart := pos + s[1]

		e := endMarkerRe.FindSubmatchIndex(data[sectionStart:])
		if e == nil {
			failures = append(failures, &apperr.DecodeError{NoteID: id, Err: errors.New("missing end marker")})
			pos = sectionStart
			continue
		}
		endID := string(data[sectionStart+e[2] : sectionStart+e[3]])
		sectionEnd := sectionStart + e[0]

		if endID != id {
			failures = append(failures, &apperr.DecodeError{
				NoteID: id,
				Err:    fmt.Errorf("end marker id %q does not match start id %q", endID, id),
			})
			// Resume right after the start marker so any following
			// well-formed section is still picked up.
			pos = sectionStart
			continue
		}
		pos = sectionStart + e[1]

		note, err := c.decodeSection(data[sectionStart:sectionEnd], id)
		if err != nil {
			var de *apperr.DecodeError
			if !errors.As(err, &de) {
				de = &apperr.DecodeError{NoteID: id, Err: err}
			}
			failures = append(failures, de)
			continue
		}
		notes = append(notes, note)
	}
	return notes, failures
}

// decodeSection parses the region between a matched marker pair. Unlike
// whole-file decoding there is no plain-body fallback: a marked section
// without a metadata block is malformed.
func (c *Codec) decodeSection(region []byte, markerID string) (models.Note, error) {
	meta, body, ok := splitFrontMatter(region)
	if !ok {
		return models.Note{}, &apperr.DecodeError{NoteID: markerID, Err: errors.New("missing metadata block")}
	}

	var fm frontMatter
	if err := yaml.Unmarshal(meta, &fm); err != nil {
		return models.Note{}, &apperr.DecodeError{NoteID: markerID, Err: fmt.Errorf("invalid front matter: %w", err)}
	}
	// Metadata id wins when present; the marker id is the fallback.
	return c.buildNote(fm, body, markerID), nil
}
