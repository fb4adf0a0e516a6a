package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrNotFound              = errors.New("not found")
	ErrDuplicate             = errors.New("duplicate record")

	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)
	ErrItemNotFound   = fmt.Errorf("item %w", ErrNotFound)
	ErrJobNotFound    = fmt.Errorf("crafting job %w", ErrNotFound)

	ErrUnknownItemType         = errors.New("unknown item type")
	ErrKitNotApplicable        = errors.New("repair kit not applicable to this equipment")
	ErrAlreadyMaxLevel         = errors.New("equipment already at max level")
	ErrAlreadyCrafting         = errors.New("already crafting this item")
	ErrMissingPrerequisiteItem = errors.New("missing prerequisite item")
	ErrNoAccelerantOwned       = errors.New("no accelerant owned")
	ErrAlreadyReady            = errors.New("crafting job already ready")
	ErrAlreadyClaimed          = errors.New("crafting job already claimed")
	ErrNotReady                = errors.New("crafting job not ready")
	ErrTierClosed              = errors.New("market tier closed")
)

// InsufficientError names the exact shortfall so callers can render "have 2, need 3".
type InsufficientError struct {
	Resource string
	Have     int64
	Need     int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient %s: have %d, need %d", e.Resource, e.Have, e.Need)
}

func (e *InsufficientError) Is(target error) bool {
	return target == ErrInsufficientResources
}

func Insufficient(resource string, have, need int64) error {
	return &InsufficientError{Resource: resource, Have: have, Need: need}
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
