// Package repository provides data access for the connection audit log.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/collab-whiteboard/backend/internal/model"
)

// ConnectionRepository provides data access for connection records.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new ConnectionRepository.
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a new, open connection record.
func (r *ConnectionRepository) Create(ctx context.Context, conn *model.Connection) error {
	query := `
		INSERT INTO connections (id, user_id, user_name, transport, remote_addr, connected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.UserName,
		conn.Transport,
		conn.RemoteAddr,
		conn.ConnectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}

	return nil
}

// Finish closes a connection record with its final counters.
func (r *ConnectionRepository) Finish(ctx context.Context, conn *model.Connection) error {
	query := `
		UPDATE connections
		SET user_name = ?, commands = ?, failures = ?, close_reason = ?, disconnected_at = ?
		WHERE id = ?
	`

	disconnectedAt := time.Now()
	if conn.DisconnectedAt != nil {
		disconnectedAt = *conn.DisconnectedAt
	}

	result, err := r.db.ExecContext(ctx, query,
		conn.UserName,
		conn.Commands,
		conn.Failures,
		conn.CloseReason,
		disconnectedAt,
		conn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish connection: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("connection %s: %w", conn.ID, model.ErrNotFound)
	}

	return nil
}

const connectionColumns = `id, user_id, user_name, transport, remote_addr, commands, failures, close_reason, connected_at, disconnected_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*model.Connection, error) {
	conn := &model.Connection{}
	var closeReason sql.NullString
	var disconnectedAt sql.NullTime

	err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.UserName,
		&conn.Transport,
		&conn.RemoteAddr,
		&conn.Commands,
		&conn.Failures,
		&closeReason,
		&conn.ConnectedAt,
		&disconnectedAt,
	)
	if err != nil {
		return nil, err
	}

	if closeReason.Valid {
		conn.CloseReason = closeReason.String
	}
	if disconnectedAt.Valid {
		t := disconnectedAt.Time
		conn.DisconnectedAt = &t
	}
	return conn, nil
}

// GetByID retrieves a connection record by its id.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = ?`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connection %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// ListRecent returns up to limit records, newest first.
func (r *ConnectionRepository) ListRecent(ctx context.Context, limit int) ([]*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections ORDER BY connected_at DESC, rowid DESC LIMIT ?`
	return r.list(ctx, query, limit)
}

// ListByUser returns every record for a user id, newest first.
func (r *ConnectionRepository) ListByUser(ctx context.Context, userID int) ([]*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = ? ORDER BY connected_at DESC, rowid DESC`
	return r.list(ctx, query, userID)
}

func (r *ConnectionRepository) list(ctx context.Context, query string, args ...any) ([]*model.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*model.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return conns, nil
}

// CountOpen returns the number of records without a disconnect time.
func (r *ConnectionRepository) CountOpen(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM connections WHERE disconnected_at IS NULL`

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open connections: %w", err)
	}
	return count, nil
}

// CloseAllOpen marks every open record as closed. It is run at startup to
// settle records left open by a crash.
func (r *ConnectionRepository) CloseAllOpen(ctx context.Context, reason string) (int, error) {
	query := `
		UPDATE connections
		SET close_reason = ?, disconnected_at = ?
		WHERE disconnected_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, reason, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to close open connections: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
