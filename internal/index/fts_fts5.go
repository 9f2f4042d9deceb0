//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/commonplace/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			title,
			content,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id, title, content string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO notes_fts (id, title, content, tags) VALUES (?, ?, ?, ?)`,
		id, title, content, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, id)
}

func ftsClear(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 query over title, content and tags, optionally
// restricted to one module, ordered by relevance with id as the
// deterministic tie-break.
func (db *DB) Search(term, module string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT n.id
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.id
		WHERE notes_fts MATCH ?`
	args := []any{term}
	if module != "" {
		query += ` AND n.module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY rank, n.id LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
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
