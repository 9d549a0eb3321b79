package intake

import (
	"errors"
	"fmt"
)

var (
	// ErrForeignAsset indicates a command names a fleet or star the empire
	// does not own, or is submitted on behalf of another empire.
	ErrForeignAsset = errors.New("asset belongs to another empire")
	// ErrStaleTurn indicates a command targets a turn other than the current one.
	ErrStaleTurn = errors.New("command targets a stale turn")
	// ErrInvalidOrder indicates a malformed or inconsistent order.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInsufficientResources indicates an order asks for more than the empire has.
	ErrInsufficientResources = errors.New("insufficient resources")
	// ErrUnknownEmpire indicates the empire does not exist or was defeated.
	ErrUnknownEmpire = errors.New("unknown empire")
	// ErrTurnClosed indicates the turn is being resolved and accepts no orders.
	ErrTurnClosed = errors.New("turn closed for orders")
	// ErrRateLimited indicates the empire exceeded its submission rate.
	ErrRateLimited = errors.New("order rate exceeded")
	// ErrDesignInUse indicates a design referenced by ships or queues cannot change.
	ErrDesignInUse = errors.New("design in use")
	// ErrTechLocked indicates the empire lacks the tech for a part or installation.
	ErrTechLocked = errors.New("tech requirement not met")
)

// Code is the stable machine-readable reason for a rejection.
type Code string

const (
	CodeForeignAsset          Code = "foreign_asset"
	CodeStaleTurn             Code = "stale_turn"
	CodeInvalidOrder          Code = "invalid_order"
	CodeInsufficientResources Code = "insufficient_resources"
	CodeUnknownEmpire         Code = "unknown_empire"
	CodeTurnClosed            Code = "turn_closed"
	CodeRateLimited           Code = "rate_limited"
	CodeDesignInUse           Code = "design_in_use"
	CodeTechLocked            Code = "tech_locked"
)

var codes = map[error]Code{
	ErrForeignAsset:          CodeForeignAsset,
	ErrStaleTurn:             CodeStaleTurn,
	ErrInvalidOrder:          CodeInvalidOrder,
	ErrInsufficientResources: CodeInsufficientResources,
	ErrUnknownEmpire:         CodeUnknownEmpire,
	ErrTurnClosed:            CodeTurnClosed,
	ErrRateLimited:           CodeRateLimited,
	ErrDesignInUse:           CodeDesignInUse,
	ErrTechLocked:            CodeTechLocked,
}

// RejectionError is returned for every refused command. It wraps one of the
// package sentinels so callers can match it with errors.Is.
type RejectionError struct {
	Code   Code
	Reason string
	err    error
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.err, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.err }

func reject(sentinel error, format string, args ...any) *RejectionError {
	return &RejectionError{
		Code:   codes[sentinel],
		Reason: fmt.Sprintf(format, args...),
		err:    sentinel,
	}
}
