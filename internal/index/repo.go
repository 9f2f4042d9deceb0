package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

// Upsert replaces the note row and fully regenerates its tag rows, link rows
// and full-text entry inside one transaction: a concurrent reader sees the
// old state or the new state, never a partial set.
func (db *DB) Upsert(n models.Note, location string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := upsertTx(tx, n, location); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertTx(tx *sql.Tx, n models.Note, location string) error {
	props, err := json.Marshal(n.Properties)
	if err != nil {
		return fmt.Errorf("index: marshal properties: %w", err)
	}
	if n.Properties == nil {
		props = []byte("{}")
	}

	_, err = tx.Exec(`
		INSERT INTO notes (id, module, title, content, created, modified, location, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			module     = excluded.module,
			title      = excluded.title,
			content    = excluded.content,
			created    = excluded.created,
			modified   = excluded.modified,
			location   = excluded.location,
			properties = excluded.properties
	`, n.ID, n.Module, n.Title, n.Content, n.Created, n.Modified, location, string(props))
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// Regenerate derived rows: delete old, bulk insert new.
	if _, err := tx.Exec(`DELETE FROM tags WHERE note_id = ?`, n.ID); err != nil {
		return fmt.Errorf("index: clear tags: %w", err)
	}
	for _, tag := range n.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (note_id, tag) VALUES (?, ?)`, n.ID, tag); err != nil {
			return fmt.Errorf("index: insert tag: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source_id = ?`, n.ID); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	for _, l := range n.Links {
		linkType := l.Type
		if linkType == "" {
			linkType = models.DefaultLinkType
		}
		_, err := tx.Exec(`INSERT OR IGNORE INTO links (source_id, target_id, link_type, context) VALUES (?, ?, ?, ?)`,
			n.ID, l.Target, linkType, l.Context)
		if err != nil {
			return fmt.Errorf("index: insert link: %w", err)
		}
	}

	return ftsUpsert(tx, n.ID, n.Title, n.Content, n.Tags)
}

// Get reconstructs a full note (tags and links included) from the
// relational rows. Returns apperr.ErrNotFound for an unknown id.
func (db *DB) Get(id string) (*models.Note, error) {
	var (
		n     models.Note
		props string
	)
	err := db.conn.QueryRow(`
		SELECT id, module, title, content, created, modified, properties
		FROM notes WHERE id = ?
	`, id).Scan(&n.ID, &n.Module, &n.Title, &n.Content, &n.Created, &n.Modified, &props)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}

	if props != "" && props != "{}" {
		if err := json.Unmarshal([]byte(props), &n.Properties); err != nil {
			return nil, fmt.Errorf("index: unmarshal properties: %w", err)
		}
	}

	rows, err := db.conn.Query(`SELECT tag FROM tags WHERE note_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("index: get tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		n.Tags = append(n.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := db.LinksFrom(id)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		n.Links = append(n.Links, models.Link{Target: e.Target, Type: e.Type, Context: e.Context})
	}
	return &n, nil
}

// Location returns the recorded file location of a note.
func (db *DB) Location(id string) (string, error) {
	var loc string
	err := db.conn.QueryRow(`SELECT location FROM notes WHERE id = ?`, id).Scan(&loc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("index: get location: %w", err)
	}
	return loc, nil
}

// Remove deletes the note row and cascades to tags, links and the full-text
// entry. Removing an absent id is a no-op.
func (db *DB) Remove(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := removeTx(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func removeTx(tx *sql.Tx, id string) error {
	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM links WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM tags WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("index: delete tags: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return nil
}

// IDsAt returns every note id recorded at the given file location.
func (db *DB) IDsAt(location string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT id FROM notes WHERE location = ? ORDER BY id`, location)
	if err != nil {
		return nil, fmt.Errorf("index: ids at location: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RemoveAt removes every note recorded at the given file location in one
// transaction and returns the removed ids.
func (db *DB) RemoveAt(location string) ([]string, error) {
	ids, err := db.IDsAt(location)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range ids {
		if err := removeTx(tx, id); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// NotesByModule returns all notes in a module, most recently modified first.
func (db *DB) NotesByModule(module string) ([]models.Note, error) {
	return db.notesByIDQuery(`SELECT id FROM notes WHERE module = ? ORDER BY modified DESC, id`, module)
}

// NotesByTag returns all notes carrying the given tag.
func (db *DB) NotesByTag(tag string) ([]models.Note, error) {
	return db.notesByIDQuery(`
		SELECT n.id FROM notes n
		JOIN tags t ON t.note_id = n.id
		WHERE t.tag = ?
		ORDER BY n.modified DESC, n.id
	`, tag)
}

func (db *DB) notesByIDQuery(query string, args ...any) ([]models.Note, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query notes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return db.notesByIDs(ids)
}

func (db *DB) notesByIDs(ids []string) ([]models.Note, error) {
	out := make([]models.Note, 0, len(ids))
	for _, id := range ids {
		n, err := db.Get(id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, nil
}

// LinksFrom returns the note's outgoing edges in insertion order.
func (db *DB) LinksFrom(id string) ([]models.Edge, error) {
	return db.edgeQuery(`
		SELECT source_id, target_id, link_type, context
		FROM links WHERE source_id = ? ORDER BY rowid
	`, id)
}

// Backlinks returns every edge pointing at the given id. An id with no
// inbound edges (including one that does not exist) yields an empty result.
func (db *DB) Backlinks(id string) ([]models.Edge, error) {
	return db.edgeQuery(`
		SELECT source_id, target_id, link_type, context
		FROM links WHERE target_id = ? ORDER BY source_id, rowid
	`, id)
}

func (db *DB) edgeQuery(query string, args ...any) ([]models.Edge, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query links: %w", err)
	}
	defer rows.Close()

	var out []models.Edge
	for rows.Next() {
		var e models.Edge
		if err := rows.Scan(&e.Source, &e.Target, &e.Type, &e.Context); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Rebuild clears every table and repopulates from entries inside a single
// transaction. If interrupted the old contents remain; the index is never
// left half-populated.
func (db *DB) Rebuild(entries []Entry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin rebuild tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"links", "tags", "notes"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	for _, e := range entries {
		if err := upsertTx(tx, e.Note, e.Location); err != nil {
			return err
		}
	}
	return tx.Commit()
}
