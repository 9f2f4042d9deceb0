//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/commonplace/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; Search falls back to LIKE over the notes and
	// tags tables, which already hold everything needed.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error {
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsClear(_ *sql.Tx) error { return nil }

// Search performs a LIKE-based scan over title, content and tags (fallback
// when FTS5 is not available). No relevance rank; results order by id.
func (db *DB) Search(term, module string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + term + "%"

	query := `
		SELECT DISTINCT n.id
		FROM notes n
		LEFT JOIN tags t ON t.note_id = n.id
		WHERE (n.title LIKE ? OR n.content LIKE ? OR t.tag LIKE ?)`
	args := []any{like, like, like}
	if module != "" {
		query += ` AND n.module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY n.id LIMIT ?`
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
