package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"auction-core/internal/api/middleware"
	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/internal/services"
	"auction-core/pkg/logger"

	"github.com/labstack/echo/v4"
)

const retryAfterSeconds = 5

type AuctionService interface {
	CreateAuction(ctx context.Context, in services.CreateAuctionInput) (domain.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (domain.Auction, error)
	ListActive(ctx context.Context) ([]domain.Auction, error)
	BanAuction(ctx context.Context, auctionID string, isAdmin bool) (domain.Auction, error)
	UpdateDescription(ctx context.Context, in services.UpdateDescriptionInput) (domain.Auction, error)
	GetHistory(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error)
}

type BidService interface {
	PlaceBid(ctx context.Context, in services.PlaceBidInput) (domain.Auction, error)
}

type Resolver interface {
	ResolveDue(ctx context.Context, now time.Time) ([]domain.ResolvedAuction, error)
}

type AuctionHandler struct {
	auctions AuctionService
	bids     BidService
	resolver Resolver
	clock    clock.Clock
	log      logger.Logger
}

type CreateAuctionRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	MinimumPrice string    `json:"minimum_price"`
	Deadline     time.Time `json:"deadline"`
}

type UpdateDescriptionRequest struct {
	Description     string `json:"description"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type PlaceBidRequest struct {
	Amount          string `json:"amount"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type AuctionResponse struct {
	ID            string       `json:"id"`
	Seller        string       `json:"seller"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	MinimumPrice  domain.Money `json:"minimum_price"`
	Deadline      time.Time    `json:"deadline"`
	Status        string       `json:"status"`
	HighestBid    domain.Money `json:"highest_bid"`
	HighestBidder string       `json:"highest_bidder,omitempty"`
	Version       int64        `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Auction *AuctionResponse `json:"auction,omitempty"`
}

type PlaceBidResponse struct {
	Status  string          `json:"status"`
	Auction AuctionResponse `json:"auction"`
}

type ResolveResponse struct {
	ResolvedAuctionTitles []string `json:"resolved_auction_titles"`
}

func NewAuctionResponse(a domain.Auction) AuctionResponse {
	return AuctionResponse{
		ID:            a.ID,
		Seller:        a.Seller,
		Title:         a.Title,
		Description:   a.Description,
		MinimumPrice:  a.MinimumPrice,
		Deadline:      a.Deadline,
		Status:        a.Status.String(),
		HighestBid:    a.HighestBid,
		HighestBidder: a.HighestBidder,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func NewAuctionHandler(auctions AuctionService, bids BidService, resolver Resolver, clk clock.Clock, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		bids:     bids,
		resolver: resolver,
		clock:    clk,
		log:      log,
	}
}

// Register mounts the REST routes under /api/v1.
func (h *AuctionHandler) Register(e *echo.Echo) {
	api := e.Group("/api/v1", middleware.Identity())
	api.POST("/auctions", h.CreateAuction)
	api.GET("/auctions", h.ListAuctions)
	api.POST("/auctions/resolve", h.ResolveDue)
	api.GET("/auctions/:id", h.GetAuction)
	api.PATCH("/auctions/:id", h.UpdateDescription)
	api.GET("/auctions/:id/history", h.GetHistory)
	api.POST("/auctions/:id/bids", h.PlaceBid)
	api.POST("/auctions/:id/ban", h.BanAuction)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	sellerID := middleware.UserID(c)
	if sellerID == "" {
		return h.writeError(c, domain.ErrUnauthenticated)
	}

	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Warn("Failed to bind request", "error", err)
		return invalidBody(c)
	}

	auction, err := h.auctions.CreateAuction(c.Request().Context(), services.CreateAuctionInput{
		SellerID:     sellerID,
		Title:        req.Title,
		Description:  req.Description,
		MinimumPrice: req.MinimumPrice,
		Deadline:     req.Deadline,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, NewAuctionResponse(auction))
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	auctions, err := h.auctions.ListActive(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}

	out := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, NewAuctionResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.auctions.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, NewAuctionResponse(auction))
}

func (h *AuctionHandler) GetHistory(c echo.Context) error {
	events, err := h.auctions.GetHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

func (h *AuctionHandler) UpdateDescription(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return h.writeError(c, domain.ErrUnauthenticated)
	}

	var req UpdateDescriptionRequest
	if err := c.Bind(&req); err != nil || req.ExpectedVersion == nil {
		return invalidBody(c)
	}

	auction, err := h.auctions.UpdateDescription(c.Request().Context(), services.UpdateDescriptionInput{
		AuctionID:       c.Param("id"),
		UserID:          userID,
		Description:     req.Description,
		ExpectedVersion: *req.ExpectedVersion,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, NewAuctionResponse(auction))
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	bidderID := middleware.UserID(c)
	if bidderID == "" {
		return h.writeError(c, domain.ErrUnauthenticated)
	}

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil || req.ExpectedVersion == nil {
		return invalidBody(c)
	}

	auction, err := h.bids.PlaceBid(c.Request().Context(), services.PlaceBidInput{
		AuctionID:       c.Param("id"),
		BidderID:        bidderID,
		Amount:          req.Amount,
		ExpectedVersion: *req.ExpectedVersion,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, PlaceBidResponse{Status: "accepted", Auction: NewAuctionResponse(auction)})
}

func (h *AuctionHandler) BanAuction(c echo.Context) error {
	if _, err := h.auctions.BanAuction(c.Request().Context(), c.Param("id"), middleware.IsAdmin(c)); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "banned"})
}

func (h *AuctionHandler) ResolveDue(c echo.Context) error {
	resolved, err := h.resolver.ResolveDue(c.Request().Context(), h.clock.Now())
	if err != nil {
		// Auctions closed before the failure stay closed; report them anyway.
		h.log.Error("Resolve finished with errors", "resolved", len(resolved), "error", err)
		if len(resolved) == 0 {
			return h.writeError(c, err)
		}
	}

	titles := make([]string, 0, len(resolved))
	for _, r := range resolved {
		titles = append(titles, r.Title)
	}
	return c.JSON(http.StatusOK, ResolveResponse{ResolvedAuctionTitles: titles})
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "invalid_request_body"})
}

func (h *AuctionHandler) writeError(c echo.Context, err error) error {
	code := domain.ReasonCode(err)
	body := ErrorResponse{Error: err.Error(), Code: code}

	switch code {
	case "not_found":
		return c.JSON(http.StatusNotFound, body)
	case "forbidden":
		return c.JSON(http.StatusForbidden, body)
	case "unauthenticated":
		return c.JSON(http.StatusUnauthorized, body)
	case "conflict":
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			current := NewAuctionResponse(conflict.Current)
			body.Auction = &current
		}
		body.Error = domain.ErrVersionConflict.Error()
		return c.JSON(http.StatusConflict, body)
	case "storage_unavailable":
		h.log.Error("Storage unavailable", "path", c.Path(), "error", err)
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		body.Error = domain.ErrStorageUnavailable.Error()
		return c.JSON(http.StatusServiceUnavailable, body)
	case "internal_error":
		h.log.Error("Request failed", "path", c.Path(), "error", err)
		body.Error = "internal error"
		return c.JSON(http.StatusInternalServerError, body)
	default:
		return c.JSON(http.StatusBadRequest, body)
	}
}
