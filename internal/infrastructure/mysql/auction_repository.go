package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"auction-core/internal/domain"

	mysqldriver "github.com/go-sql-driver/mysql"
)

const auctionColumns = `id, seller, title, description, minimum_price, deadline, status,
        highest_bid, highest_bidder, bidders, version, created_at, updated_at`

const errDuplicateEntry = 1062

// MySQLAuctionRepository implements domain.AuctionStore. The version column
// is the optimistic lock: updates only match the row at the expected version.
type MySQLAuctionRepository struct {
	db *sql.DB
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

func (r *MySQLAuctionRepository) Create(ctx context.Context, auction domain.Auction) error {
	bidders, err := encodeBidders(auction.Bidders)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = r.db.ExecContext(ctx, query,
		auction.ID, auction.Seller, auction.Title, auction.Description,
		int64(auction.MinimumPrice), auction.Deadline.UTC(), int(auction.Status),
		int64(auction.HighestBid), nullableString(auction.HighestBidder), bidders,
		auction.Version, auction.CreatedAt.UTC(), auction.UpdatedAt.UTC())
	if err != nil {
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
			return domain.ErrAuctionExists
		}
		return fmt.Errorf("create auction: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *MySQLAuctionRepository) Get(ctx context.Context, auctionID string) (domain.Auction, bool, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Auction{}, false, nil
	}
	if err != nil {
		return domain.Auction{}, false, fmt.Errorf("get auction: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return auction, true, nil
}

func (r *MySQLAuctionRepository) CompareAndSwap(ctx context.Context, auctionID string, expectedVersion int64, mutated domain.Auction) (bool, domain.Auction, error) {
	bidders, err := encodeBidders(mutated.Bidders)
	if err != nil {
		return false, domain.Auction{}, err
	}

	next := mutated.Clone()
	next.ID = auctionID
	next.Version = expectedVersion + 1

	query := `
        UPDATE auctions
        SET seller = ?, title = ?, description = ?, minimum_price = ?, deadline = ?, status = ?,
            highest_bid = ?, highest_bidder = ?, bidders = ?, version = ?, updated_at = ?
        WHERE id = ? AND version = ?
    `
	res, err := r.db.ExecContext(ctx, query,
		next.Seller, next.Title, next.Description, int64(next.MinimumPrice), next.Deadline.UTC(),
		int(next.Status), int64(next.HighestBid), nullableString(next.HighestBidder), bidders,
		next.Version, next.UpdatedAt.UTC(),
		auctionID, expectedVersion)
	if err != nil {
		return false, domain.Auction{}, fmt.Errorf("update auction: %w: %w", domain.ErrStorageUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, domain.Auction{}, fmt.Errorf("update auction: %w: %w", domain.ErrStorageUnavailable, err)
	}
	if affected == 1 {
		return true, next, nil
	}

	current, found, err := r.Get(ctx, auctionID)
	if err != nil {
		return false, domain.Auction{}, err
	}
	if !found {
		return false, domain.Auction{}, domain.ErrAuctionNotFound
	}
	return false, current, nil
}

func (r *MySQLAuctionRepository) ListActive(ctx context.Context) ([]domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions WHERE status = ?
        ORDER BY deadline ASC, id ASC
    `
	return r.query(ctx, query, int(domain.AuctionActive))
}

func (r *MySQLAuctionRepository) ListActiveDue(ctx context.Context, before time.Time) ([]domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions WHERE status = ? AND deadline < ?
        ORDER BY deadline ASC, id ASC
    `
	return r.query(ctx, query, int(domain.AuctionActive), before.UTC())
}

func (r *MySQLAuctionRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w: %w", domain.ErrStorageUnavailable, err)
		}
		auctions = append(auctions, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list auctions: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return auctions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (domain.Auction, error) {
	var (
		auction       domain.Auction
		minimumPrice  int64
		highestBid    int64
		status        int
		highestBidder sql.NullString
		bidders       []byte
	)

	err := row.Scan(&auction.ID, &auction.Seller, &auction.Title, &auction.Description,
		&minimumPrice, &auction.Deadline, &status, &highestBid, &highestBidder, &bidders,
		&auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return domain.Auction{}, err
	}

	if len(bidders) > 0 {
		if err := json.Unmarshal(bidders, &auction.Bidders); err != nil {
			return domain.Auction{}, fmt.Errorf("decode bidders: %w", err)
		}
	}
	auction.MinimumPrice = domain.Money(minimumPrice)
	auction.HighestBid = domain.Money(highestBid)
	auction.Status = domain.AuctionStatus(status)
	auction.HighestBidder = highestBidder.String
	auction.Deadline = auction.Deadline.UTC()
	auction.CreatedAt = auction.CreatedAt.UTC()
	auction.UpdatedAt = auction.UpdatedAt.UTC()
	return auction, nil
}

// encodeBidders returns a JSON array as text; MySQL rejects binary strings for JSON columns.
func encodeBidders(bidders []string) (string, error) {
	if bidders == nil {
		bidders = []string{}
	}
	data, err := json.Marshal(bidders)
	if err != nil {
		return "", fmt.Errorf("encode bidders: %w", err)
	}
	return string(data), nil
}

func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
