package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/pkg/logger"

	"github.com/google/uuid"
)

const (
	DefaultMinLeadTime   = 72 * time.Hour
	MaxTitleLength       = 256
	MaxDescriptionLength = 3000

	// banAttempts bounds the retries of an admin ban racing with bids.
	banAttempts = 3
)

type CreateAuctionInput struct {
	SellerID     string
	Title        string
	Description  string
	MinimumPrice string
	Deadline     time.Time
}

type UpdateDescriptionInput struct {
	AuctionID       string
	UserID          string
	Description     string
	ExpectedVersion int64
}

// AuctionManager owns every auction mutation other than bids and deadline resolution.
type AuctionManager struct {
	store       domain.AuctionStore
	history     domain.AuctionEventRepository
	notifier    domain.Notifier
	events      eventEmitter
	clock       clock.Clock
	minLeadTime time.Duration
	log         logger.Logger
}

type ManagerOption func(*AuctionManager)

// WithMinLeadTime overrides the minimum distance between creation and deadline.
func WithMinLeadTime(d time.Duration) ManagerOption {
	return func(m *AuctionManager) {
		m.minLeadTime = d
	}
}

func NewAuctionManager(
	store domain.AuctionStore,
	history domain.AuctionEventRepository,
	notifier domain.Notifier,
	publisher domain.EventPublisher,
	clk clock.Clock,
	log logger.Logger,
	opts ...ManagerOption,
) *AuctionManager {
	m := &AuctionManager{
		store:       store,
		history:     history,
		notifier:    notifier,
		events:      eventEmitter{publisher: publisher, archive: history, log: log},
		clock:       clk,
		minLeadTime: DefaultMinLeadTime,
		log:         log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *AuctionManager) CreateAuction(ctx context.Context, in CreateAuctionInput) (domain.Auction, error) {
	if in.SellerID == "" {
		return domain.Auction{}, domain.ErrUnauthenticated
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Auction{}, domain.ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return domain.Auction{}, domain.ErrTitleTooLong
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return domain.Auction{}, domain.ErrDescriptionTooLong
	}

	price, err := domain.ParseMoney(in.MinimumPrice)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("%w: %q", domain.ErrInvalidMinimumPrice, in.MinimumPrice)
	}

	now := m.clock.Now()
	deadline := in.Deadline.UTC()
	if deadline.Before(now.Add(m.minLeadTime)) {
		return domain.Auction{}, fmt.Errorf("%w: must be at least %s from now", domain.ErrDeadlineTooSoon, m.minLeadTime)
	}

	auction := domain.Auction{
		ID:           uuid.NewString(),
		Seller:       in.SellerID,
		Title:        title,
		Description:  in.Description,
		MinimumPrice: price,
		Deadline:     deadline,
		Status:       domain.AuctionActive,
		HighestBid:   price,
		Bidders:      []string{},
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.Create(ctx, auction); err != nil {
		return domain.Auction{}, err
	}

	m.log.Info("Auction created", "auction_id", auction.ID, "seller_id", auction.Seller, "deadline", auction.Deadline)
	m.notifier.Notify(ctx, auction.Seller, "Auction created: "+auction.Title,
		fmt.Sprintf("Your auction %q is open for bids until %s.", auction.Title, auction.Deadline.Format(time.RFC3339)))
	return auction, nil
}

// BanAuction moves an active auction to banned. Only administrators may ban.
func (m *AuctionManager) BanAuction(ctx context.Context, auctionID string, isAdmin bool) (domain.Auction, error) {
	if !isAdmin {
		return domain.Auction{}, domain.ErrForbidden
	}

	auction, err := m.GetAuction(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}

	for attempt := 0; attempt < banAttempts; attempt++ {
		if auction.Status != domain.AuctionActive {
			return domain.Auction{}, domain.ErrAuctionNotActive
		}

		now := m.clock.Now()
		mutated := auction.Clone()
		mutated.Status = domain.AuctionBanned
		mutated.UpdatedAt = now

		ok, current, err := m.store.CompareAndSwap(ctx, auction.ID, auction.Version, mutated)
		if err != nil {
			return domain.Auction{}, err
		}
		if !ok {
			auction = current
			continue
		}

		m.log.Info("Auction banned", "auction_id", current.ID, "version", current.Version)
		subject := "Auction banned: " + current.Title
		body := fmt.Sprintf("Auction %q has been banned by an administrator.", current.Title)
		for _, userID := range current.Participants() {
			m.notifier.Notify(ctx, userID, subject, body)
		}
		m.events.emit(eventFor(domain.AuctionBannedEvent, current, "", now))
		return current, nil
	}

	return domain.Auction{}, &domain.ConflictError{Current: auction}
}

// UpdateDescription lets the seller edit an active auction. The version bump
// invalidates bids prepared against the previous text.
func (m *AuctionManager) UpdateDescription(ctx context.Context, in UpdateDescriptionInput) (domain.Auction, error) {
	if in.UserID == "" {
		return domain.Auction{}, domain.ErrUnauthenticated
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return domain.Auction{}, domain.ErrDescriptionTooLong
	}

	auction, err := m.GetAuction(ctx, in.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	if auction.Seller != in.UserID {
		return domain.Auction{}, domain.ErrForbidden
	}

	now := m.clock.Now()
	if !auction.AcceptsBids(now) {
		return domain.Auction{}, domain.ErrAuctionNotActive
	}

	mutated := auction.Clone()
	mutated.Description = in.Description
	mutated.UpdatedAt = now

	ok, current, err := m.store.CompareAndSwap(ctx, auction.ID, in.ExpectedVersion, mutated)
	if err != nil {
		return domain.Auction{}, err
	}
	if !ok {
		return domain.Auction{}, &domain.ConflictError{Current: current}
	}

	m.log.Info("Auction description updated", "auction_id", current.ID, "version", current.Version)
	m.events.emit(eventFor(domain.AuctionUpdated, current, in.UserID, now))
	return current, nil
}

func (m *AuctionManager) GetAuction(ctx context.Context, auctionID string) (domain.Auction, error) {
	auction, found, err := m.store.Get(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	if !found {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}
	return auction, nil
}

func (m *AuctionManager) ListActive(ctx context.Context) ([]domain.Auction, error) {
	auctions, err := m.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if auctions == nil {
		auctions = []domain.Auction{}
	}
	return auctions, nil
}

// GetHistory returns the archived events of an auction, oldest first.
func (m *AuctionManager) GetHistory(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error) {
	if _, err := m.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	if m.history == nil {
		return []*domain.AuctionEvent{}, nil
	}

	events, err := m.history.GetAuctionHistory(ctx, auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("auction history: %w: %w", domain.ErrStorageUnavailable, err)
	}
	if events == nil {
		events = []*domain.AuctionEvent{}
	}
	return events, nil
}
