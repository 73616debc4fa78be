package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
        id             VARCHAR(64)  NOT NULL PRIMARY KEY,
        seller         VARCHAR(128) NOT NULL,
        title          VARCHAR(256) NOT NULL,
        description    TEXT         NOT NULL,
        minimum_price  BIGINT       NOT NULL,
        deadline       DATETIME(6)  NOT NULL,
        status         TINYINT      NOT NULL,
        highest_bid    BIGINT       NOT NULL,
        highest_bidder VARCHAR(128) NULL,
        bidders        JSON         NOT NULL,
        version        BIGINT       NOT NULL,
        created_at     DATETIME(6)  NOT NULL,
        updated_at     DATETIME(6)  NOT NULL,
        INDEX idx_auctions_status_deadline (status, deadline)
    )`,
	`CREATE TABLE IF NOT EXISTS auction_events (
        id          BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
        auction_id  VARCHAR(64)  NOT NULL,
        event_type  VARCHAR(32)  NOT NULL,
        user_id     VARCHAR(128) NOT NULL,
        amount      BIGINT       NOT NULL,
        status      TINYINT      NOT NULL,
        version     BIGINT       NOT NULL,
        timestamp   DATETIME(6)  NOT NULL,
        created_at  DATETIME(6)  NOT NULL,
        INDEX idx_auction_events_auction (auction_id, timestamp)
    )`,
}

// EnsureSchema creates the tables the service needs if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
