package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrAuctionExists       = errors.New("auction already exists")
	ErrAuctionNotActive    = errors.New("auction is not active")
	ErrSelfBidForbidden    = errors.New("a seller cannot bid on own auction")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBidTooLow           = errors.New("bid must exceed the current highest bid by at least 0.01")
	ErrVersionConflict     = errors.New("auction information has changed")
	ErrForbidden           = errors.New("forbidden")
	ErrTitleRequired       = errors.New("title is required")
	ErrInvalidMinimumPrice = errors.New("minimum price must be at least 0.01")
	ErrDeadlineTooSoon     = errors.New("deadline is too soon")
	ErrTitleTooLong        = errors.New("title must be at most 256 characters")
	ErrDescriptionTooLong  = errors.New("description must be at most 3000 characters")
	ErrUnauthenticated     = errors.New("user identity required")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// ReasonCode maps an operation error to the machine-readable code reported to callers.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuctionNotFound):
		return "not_found"
	case errors.Is(err, ErrAuctionNotActive):
		return "auction_not_active"
	case errors.Is(err, ErrSelfBidForbidden):
		return "self_bid_forbidden"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrVersionConflict):
		return "conflict"
	case errors.Is(err, ErrAuctionExists):
		return "auction_exists"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrTitleRequired):
		return "title_required"
	case errors.Is(err, ErrTitleTooLong):
		return "title_too_long"
	case errors.Is(err, ErrDescriptionTooLong):
		return "description_too_long"
	case errors.Is(err, ErrInvalidMinimumPrice):
		return "invalid_minimum_price"
	case errors.Is(err, ErrDeadlineTooSoon):
		return "deadline_too_soon"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}

// ConflictError is returned when a compare-and-swap lost against a newer version.
// Current is the record as stored at the time of the conflict.
type ConflictError struct {
	Current Auction
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: auction %s is at version %d", ErrVersionConflict, e.Current.ID, e.Current.Version)
}

func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}
