package fsm

import "errors"

var (
	// ErrUnknownState means a state name outside the closed enumeration
	ErrUnknownState = errors.New("unknown replication state")

	// ErrUnknownFormationKind means a formation kind outside {plain, sharded}
	ErrUnknownFormationKind = errors.New("unknown formation kind")

	// ErrPrimaryNotFound means the engine was invoked on a group snapshot
	// with no locatable primary-like node while a rule requires one
	ErrPrimaryNotFound = errors.New("no primary-like node in group")

	// ErrNodeNotInGroup means the reporting node is missing from its own
	// group snapshot
	ErrNodeNotInGroup = errors.New("reporting node not part of group snapshot")
)
