package chat

import (
	"errors"
	"fmt"
)

// Error categories, concrete errors below wrap exactly one of them
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidInput     = errors.New("invalid input")
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrRoomNotFound    = fmt.Errorf("chat room %w", ErrNotFound)
	ErrSelfChat        = fmt.Errorf("%w: cannot open a chat on one's own listing", ErrInvalidOperation)
	ErrNotParticipant  = fmt.Errorf("%w: user is not a chat participant", ErrForbidden)
	ErrEmptyContent    = fmt.Errorf("%w: message content must not be empty", ErrInvalidInput)
)
