package coordinator

import "errors"

var (
	// ErrInvalidPriority means a candidate priority outside 0..100
	ErrInvalidPriority = errors.New("candidate priority must be between 0 and 100")

	// ErrInvalidGroup means a group id that is not valid for the formation kind
	ErrInvalidGroup = errors.New("invalid group for formation kind")

	// ErrSecondaryDisabled means the formation does not accept standbys
	ErrSecondaryDisabled = errors.New("formation does not allow secondary nodes")

	// ErrPrimaryNotReady means the group's first node has not yet converged
	// to a writable state, registration should be retried
	ErrPrimaryNotReady = errors.New("primary node is still initializing")

	// ErrRegistrationInProgress means another standby is mid-registration,
	// only one standby can join at a time
	ErrRegistrationInProgress = errors.New("another standby is currently being registered")

	// ErrNodeIDMismatch means the reporting agent carries a node id that was
	// removed from the monitor
	ErrNodeIDMismatch = errors.New("node id does not match the registered node")

	// ErrKindMismatch means a node of one kind registering into a non-empty
	// formation of another kind
	ErrKindMismatch = errors.New("node kind does not match formation kind")
)
