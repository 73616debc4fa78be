package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"auction-core/internal/domain"
)

// MySQLEventRepository archives auction events for audit and history.
type MySQLEventRepository struct {
	db *sql.DB
}

func NewMySQLEventRepository(db *sql.DB) *MySQLEventRepository {
	return &MySQLEventRepository{db: db}
}

func (r *MySQLEventRepository) SaveAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	query := `
        INSERT INTO auction_events (auction_id, event_type, user_id, amount, status, version, timestamp, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		event.AuctionID, string(event.Type), event.UserID, int64(event.Amount),
		int(event.Status), event.Version, event.Timestamp.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save auction event: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *MySQLEventRepository) GetAuctionHistory(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error) {
	query := `
        SELECT auction_id, event_type, user_id, amount, status, version, timestamp
        FROM auction_events
        WHERE auction_id = ?
        ORDER BY version ASC, id ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("auction history: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var events []*domain.AuctionEvent
	for rows.Next() {
		var event domain.AuctionEvent
		var eventType string
		var amount int64
		var status int

		err := rows.Scan(&event.AuctionID, &eventType, &event.UserID, &amount,
			&status, &event.Version, &event.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan auction event: %w", err)
		}

		event.Type = domain.AuctionEventType(eventType)
		event.Amount = domain.Money(amount)
		event.Status = domain.AuctionStatus(status)
		event.Timestamp = event.Timestamp.UTC()
		events = append(events, &event)
	}

	return events, rows.Err()
}
