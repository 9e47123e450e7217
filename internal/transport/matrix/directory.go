// ABOUTME: Persistent peer directory mapping numeric peer IDs to Matrix identifiers
// ABOUTME: SQLite-backed with schema creation on open; IDs are stable FNV-1a hashes

package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"maunium.net/go/mautrix/id"

	_ "modernc.org/sqlite"
)

// ErrUnknownPeer is returned when a numeric peer ID has never been seen.
var ErrUnknownPeer = errors.New("unknown peer")

// Peer kinds stored in the directory.
const (
	peerKindUser = "user"
	peerKindRoom = "room"
)

// PeerID derives the stable numeric identifier for a Matrix user or room ID.
// It is the FNV-1a 64-bit hash of the identifier string interpreted as a
// signed integer, so IDs survive restarts without coordination and cover the
// negative range (channel-style identifiers are negative in practice).
func PeerID(matrixID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(matrixID))
	return int64(h.Sum64())
}

// Directory records every peer the relay has seen and resolves numeric IDs
// back to Matrix identifiers at delivery time. It is the only component that
// knows both sides of the mapping; the relay core deals in numeric IDs only.
type Directory struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenDirectory opens (or creates) the directory database at path.
func OpenDirectory(path string, logger *slog.Logger) (*Directory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating directory database dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening directory database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	d := &Directory{
		db:     db,
		logger: logger.With("component", "directory"),
	}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	d.logger.Info("peer directory opened", "path", path)
	return d, nil
}

func (d *Directory) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS peers (
			id           INTEGER PRIMARY KEY,
			matrix_id    TEXT NOT NULL UNIQUE,
			kind         TEXT NOT NULL,
			display_name TEXT,
			dm_room_id   TEXT,
			first_seen   TEXT NOT NULL,
			last_seen    TEXT NOT NULL,

			CHECK (kind IN ('user', 'room'))
		);

		CREATE INDEX IF NOT EXISTS idx_peers_dm_room ON peers(dm_room_id);
	`
	_, err := d.db.Exec(schema)
	return err
}

// RecordUser upserts a user peer and returns its numeric ID.
func (d *Directory) RecordUser(ctx context.Context, userID id.UserID, displayName string) (int64, error) {
	return d.record(ctx, userID.String(), peerKindUser, displayName)
}

// RecordRoom upserts a room peer and returns its numeric ID.
func (d *Directory) RecordRoom(ctx context.Context, roomID id.RoomID) (int64, error) {
	return d.record(ctx, roomID.String(), peerKindRoom, "")
}

func (d *Directory) record(ctx context.Context, matrixID, kind, displayName string) (int64, error) {
	peerID := PeerID(matrixID)
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO peers (id, matrix_id, kind, display_name, first_seen, last_seen)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = COALESCE(NULLIF(excluded.display_name, ''), peers.display_name),
			last_seen = excluded.last_seen
	`, peerID, matrixID, kind, displayName, now, now)
	if err != nil {
		return 0, fmt.Errorf("recording peer %s: %w", matrixID, err)
	}
	return peerID, nil
}

// SetDirectRoom remembers the one-to-one room used to reach a user.
func (d *Directory) SetDirectRoom(ctx context.Context, userID id.UserID, roomID id.RoomID) error {
	if _, err := d.RecordUser(ctx, userID, ""); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx,
		`UPDATE peers SET dm_room_id = ? WHERE id = ?`,
		roomID.String(), PeerID(userID.String()))
	if err != nil {
		return fmt.Errorf("recording direct room for %s: %w", userID, err)
	}
	return nil
}

// Resolve returns the Matrix identifier and kind for a numeric peer ID.
func (d *Directory) Resolve(ctx context.Context, peerID int64) (matrixID, kind string, err error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT matrix_id, kind FROM peers WHERE id = ?`, peerID)
	if err := row.Scan(&matrixID, &kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("peer %d: %w", peerID, ErrUnknownPeer)
		}
		return "", "", fmt.Errorf("resolving peer %d: %w", peerID, err)
	}
	return matrixID, kind, nil
}

// DirectRoom returns the recorded one-to-one room for a user peer, if any.
func (d *Directory) DirectRoom(ctx context.Context, peerID int64) (id.RoomID, bool, error) {
	var dmRoom sql.NullString
	row := d.db.QueryRowContext(ctx,
		`SELECT dm_room_id FROM peers WHERE id = ?`, peerID)
	if err := row.Scan(&dmRoom); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("peer %d: %w", peerID, ErrUnknownPeer)
		}
		return "", false, fmt.Errorf("looking up direct room for %d: %w", peerID, err)
	}
	if !dmRoom.Valid || dmRoom.String == "" {
		return "", false, nil
	}
	return id.RoomID(dmRoom.String), true, nil
}

// UserForDirectRoom returns the user whose direct room is roomID, if recorded.
func (d *Directory) UserForDirectRoom(ctx context.Context, roomID id.RoomID) (id.UserID, bool, error) {
	var matrixID string
	row := d.db.QueryRowContext(ctx,
		`SELECT matrix_id FROM peers WHERE dm_room_id = ? AND kind = 'user'`, roomID.String())
	if err := row.Scan(&matrixID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("looking up direct room %s: %w", roomID, err)
	}
	return id.UserID(matrixID), true, nil
}

// Close closes the backing database.
func (d *Directory) Close() error {
	return d.db.Close()
}
