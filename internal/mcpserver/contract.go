package mcpserver

// NoteFormatContract describes the canonical note record format that
// LLM consumers should follow when creating or updating notes.
const NoteFormatContract = `# Commonplace Note Format Contract

Every note stored in Commonplace MUST follow this structure.

## Structure

` + "```" + `markdown
---
id: 9f1c2e3a                        # REQUIRED in stored files – stable unique identifier
module: zettelkasten                # OPTIONAL – logical notebook; defaults to "inbox"
title: Human-readable title         # OPTIONAL – defaults to "Untitled"
created: 2026-01-15T09:30:00.000000000Z
modified: 2026-01-15T09:30:00.000000000Z
tags:                               # OPTIONAL – YAML list; used for filtering
  - tag-one
  - tag-two
links:                              # OPTIONAL – typed edges to other notes by id
  - target: 4b2d8c1f
    type: reference
properties: {}                      # OPTIONAL – free-form key/value metadata
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **YAML front matter is delimited by ` + "`" + `---` + "`" + ` fences** starting at the
   first byte of the record.
2. **` + "`" + `id` + "`" + ` is the note's identity.** It never changes; filenames and
   modules may.
3. **Timestamps** use UTC with nanosecond precision so they sort
   lexicographically.
4. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `, ` + "`" + `reading-list` + "`" + `).
5. **Links** reference other notes by id, with an optional type
   (default ` + "`" + `reference` + "`" + `) and context snippet.
6. **Encoding** is UTF-8 with a trailing newline.

## Grouped containers

In the grouped layout, several notes share one file per module and
month. Each record is wrapped in marker comments:

` + "```" + `markdown
# Notes file (2 notes)

<!-- NOTE_START: 9f1c2e3a -->
---
id: 9f1c2e3a
...
---

Body of the first note.
<!-- NOTE_END: 9f1c2e3a -->

<!-- NOTE_START: 4b2d8c1f -->
...
<!-- NOTE_END: 4b2d8c1f -->
` + "```" + `

The id in the marker and the id in the front matter must agree. Never
edit the markers by hand; the engine owns container files.

## Example

` + "```" + `markdown
---
id: 7a3f9b02
module: philosophy
title: Epistemology Notes
created: 2026-01-20T10:00:00.000000000Z
modified: 2026-01-20T10:00:00.000000000Z
tags:
  - philosophy
  - kant
links:
  - target: 1e5c8d44
    type: reference
    context: critique of pure reason
---

# Epistemology

Kant argued that knowledge begins with experience but does not arise
from it alone.
` + "```" + `
`
