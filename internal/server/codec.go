package server

import (
	"context"
	"encoding/json"
	"errors"

	"mining-economy/internal/domain"

	"connectrpc.com/connect"
)

// jsonCodec replaces connect's protobuf-backed JSON codec so plain Go structs can be used as
// messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownItemType):
		return connect.CodeInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, domain.ErrAlreadyCrafting), errors.Is(err, domain.ErrAlreadyClaimed), errors.Is(err, domain.ErrDuplicate):
		return connect.CodeAlreadyExists
	case errors.Is(err, domain.ErrInsufficientResources),
		errors.Is(err, domain.ErrAlreadyMaxLevel),
		errors.Is(err, domain.ErrAlreadyReady),
		errors.Is(err, domain.ErrNotReady),
		errors.Is(err, domain.ErrKitNotApplicable),
		errors.Is(err, domain.ErrMissingPrerequisiteItem),
		errors.Is(err, domain.ErrNoAccelerantOwned),
		errors.Is(err, domain.ErrTierClosed):
		return connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	default:
		return connect.CodeInternal
	}
}
