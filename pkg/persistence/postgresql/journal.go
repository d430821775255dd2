package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/persistence"
	"github.com/lib/pq"
)

// Journal implements persistence.BatchJournal on the pending_deliveries table.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ persistence.BatchJournal = (*Journal)(nil)

// NewJournal connects to databaseURL and runs pending migrations.
func NewJournal(ctx context.Context, logger *slog.Logger, databaseURL string) (*Journal, error) {
	database, err := open(ctx, logger, databaseURL)
	if err != nil {
		return nil, err
	}

	return &Journal{db: database, logger: logger}, nil
}

// Append stores request for owner. Appending an id twice keeps the first copy.
func (j *Journal) Append(ctx context.Context, owner string, request events.DeliveryRequested) error {
	if owner == "" {
		return persistence.ErrInvalidOwner
	}

	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to encode request %s: %w", request.ID, err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO pending_deliveries (owner, id, request) VALUES ($1, $2, $3) ON CONFLICT (owner, id) DO NOTHING`,
		owner, request.ID, data)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to journal request", "owner", owner, "request_id", request.ID, "error", err)

		return fmt.Errorf("failed to journal request %s: %w", request.ID, err)
	}

	return nil
}

func (j *Journal) Remove(ctx context.Context, owner string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := j.db.ExecContext(ctx,
		`DELETE FROM pending_deliveries WHERE owner = $1 AND id = ANY($2)`,
		owner, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to remove journaled requests: %w", err)
	}

	return nil
}

func (j *Journal) Pending(ctx context.Context, owner string) ([]events.DeliveryRequested, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT request FROM pending_deliveries WHERE owner = $1 ORDER BY seq`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []events.DeliveryRequested

	for rows.Next() {
		var data []byte

		err := rows.Scan(&data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		var request events.DeliveryRequested

		err = json.Unmarshal(data, &request)
		if err != nil {
			return nil, fmt.Errorf("failed to decode journal entry: %w", err)
		}

		out = append(out, request)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	return out, nil
}

// Close closes the database connection.
func (j *Journal) Close(_ context.Context) error {
	err := j.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
