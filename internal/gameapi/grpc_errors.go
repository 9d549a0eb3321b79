package gameapi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/stellar-empires/internal/sim/intake"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
	"github.com/signalsfoundry/stellar-empires/kb"
)

var (
	// ErrGameNotFound indicates no game is registered under the id.
	ErrGameNotFound = errors.New("game not found")
	// ErrGameExists indicates a game id is already registered.
	ErrGameExists = errors.New("game already exists")
	// ErrInvalidGameSpec indicates CreateGame was given an unusable spec.
	ErrInvalidGameSpec = errors.New("invalid game spec")
)

// ToStatusError maps engine errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrGameNotFound),
		errors.Is(err, state.ErrEmpireNotFound),
		errors.Is(err, state.ErrStarNotFound),
		errors.Is(err, state.ErrFleetNotFound),
		errors.Is(err, state.ErrDesignNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidGameSpec),
		errors.Is(err, intake.ErrInvalidOrder),
		errors.Is(err, intake.ErrUnknownEmpire),
		errors.Is(err, kb.ErrInvalidDesign):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, intake.ErrForeignAsset):
		return status.Error(codes.PermissionDenied, err.Error())

	case errors.Is(err, intake.ErrStaleTurn),
		errors.Is(err, intake.ErrTurnClosed),
		errors.Is(err, intake.ErrDesignInUse),
		errors.Is(err, intake.ErrTechLocked),
		errors.Is(err, intake.ErrInsufficientResources):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, turn.ErrResolutionInProgress):
		return status.Error(codes.Aborted, err.Error())

	case errors.Is(err, intake.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())

	case errors.Is(err, ErrGameExists),
		errors.Is(err, state.ErrEmpireExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
