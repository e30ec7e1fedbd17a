package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/justestif/go-reels-feed/internal/song"
)

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	artist     TEXT NOT NULL DEFAULT '',
	art        TEXT NOT NULL DEFAULT '',
	path       TEXT NOT NULL,
	language   TEXT NOT NULL DEFAULT '',
	duration   INTEGER NOT NULL DEFAULT 0,
	source     TEXT NOT NULL DEFAULT '',
	added_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS songs_artist ON songs(artist);
`

// SQLite is a Library stored in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the library database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating library directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}
	db.SetMaxOpenConns(4)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating library: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Songs returns every library song, oldest first. Songs carry their local
// file path as StreamURL.
func (l *SQLite) Songs(ctx context.Context) ([]song.Song, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, title, artist, art, path, language, duration FROM songs ORDER BY added_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying songs: %w", err)
	}
	defer rows.Close()

	var out []song.Song
	for rows.Next() {
		s := song.Song{Source: song.SourceLocal, IsLocal: true}
		if err := rows.Scan(&s.ID, &s.Title, &s.Artist, &s.HighResArt, &s.StreamURL, &s.Language, &s.Duration); err != nil {
			return nil, fmt.Errorf("scanning song: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating songs: %w", err)
	}
	return out, nil
}

// Add upserts s. s.StreamURL must be the local file path.
func (l *SQLite) Add(ctx context.Context, s song.Song) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO songs (id, title, artist, art, path, language, duration, source, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			art = excluded.art,
			path = excluded.path,
			language = excluded.language,
			duration = excluded.duration`,
		s.ID, s.Title, s.Artist, s.HighResArt, s.StreamURL, s.Language, s.Duration, string(s.Source), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving song %s: %w", s.ID, err)
	}
	return nil
}

// Close closes the database.
func (l *SQLite) Close() error {
	return l.db.Close()
}
