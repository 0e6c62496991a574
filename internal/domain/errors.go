package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrPriceStale        = errors.New("price sample is stale")
	ErrBorrowingDisabled = errors.New("borrowing not configured")
	ErrFlowActive        = errors.New("flow already in progress")
)
