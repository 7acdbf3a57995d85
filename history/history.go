// Package history keeps a persistent log of friend conversations.
//
// Messages are keyed by the friend's public key rather than the session's
// friend number, which can change between runs. The store is SQLite; the
// schema is applied from embedded migrations on Open.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/crypto"
	"github.com/opd-ai/toxclient/history/migrations"
)

// Entry is one logged message.
type Entry struct {
	ID       uuid.UUID
	PeerKey  [32]byte
	Outgoing bool
	Action   bool
	Text     string
	Time     time.Time
}

// Store is an open history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and migrates it. ":memory:"
// gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second pooled connection would see a different in-memory database.
	db.SetMaxOpenConns(1)

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "history.Open",
		"path":     path,
	}).Info("Chat history opened")

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append logs e. A zero ID or Time is filled in; the stored entry is
// returned.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, peer_key, outgoing, action, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID.String(), crypto.PublicKeyString(e.PeerKey), e.Outgoing, e.Action, e.Text, e.Time.UnixNano())
	if err != nil {
		return Entry{}, fmt.Errorf("inserting message: %w", err)
	}
	return e, nil
}

// Recent returns up to limit of the newest messages with peer, oldest first.
func (s *Store) Recent(ctx context.Context, peer [32]byte, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, outgoing, action, body, created_at FROM messages
		 WHERE peer_key = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		crypto.PublicKeyString(peer), limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			id    string
			nanos int64
			e     = Entry{PeerKey: peer}
		)
		if err := rows.Scan(&id, &e.Outgoing, &e.Action, &e.Text, &nanos); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing message id: %w", err)
		}
		e.Time = time.Unix(0, nanos)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Forget deletes the conversation with peer and returns the number of
// removed messages.
func (s *Store) Forget(ctx context.Context, peer [32]byte) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE peer_key = ?`, crypto.PublicKeyString(peer))
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}
	return res.RowsAffected()
}
