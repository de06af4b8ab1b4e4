package state

import "errors"

var (
	// ErrIdentityTaken is fatal to the registration attempt: the competing
	// connection is closed, the existing one keeps its identity.
	ErrIdentityTaken = errors.New("identity is already in use")

	ErrUnknownConnection = errors.New("unknown connection")

	ErrInvalidGroupName = errors.New("group name is empty or invalid")
	ErrGroupExists      = errors.New("group already exists")
	ErrGroupNotFound    = errors.New("group not found")
	ErrAlreadyMember    = errors.New("already a member of this group")
	ErrNotMember        = errors.New("not a member of this group")
)
