package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is the lost create-or-join race; it never leaves the service layer.
	ErrConflict = errors.New("conflict")
	// ErrStale marks a signal that does not fit the connection's negotiation state.
	ErrStale = errors.New("stale signal")
	// ErrTransient means negotiation is not ready for the signal yet; retry later.
	ErrTransient = errors.New("negotiation not ready")
	ErrInvalid   = errors.New("invalid argument")
)

var (
	ErrHuddleNotFound       = fmt.Errorf("huddle %w", ErrNotFound)
	ErrScopeNotFound        = fmt.Errorf("huddle scope %w", ErrNotFound)
	ErrMemberNotFound       = fmt.Errorf("member %w", ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)

	ErrNotHost        = fmt.Errorf("%w: only the host can end this huddle", ErrForbidden)
	ErrNoScopeAccess  = fmt.Errorf("%w: no access to the huddle scope", ErrForbidden)
	ErrNotParticipant = fmt.Errorf("%w: not an active participant of this huddle", ErrForbidden)
	ErrNotMember      = fmt.Errorf("%w: not a member of this workspace", ErrForbidden)
)
