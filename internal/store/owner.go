package store

import (
	"errors"

	"sprintbase/api/internal/identity"
)

// ErrNotFound covers both a missing row and a row owned by a different
// identity. Callers cannot distinguish the two, which keeps existence from
// leaking across identities.
var ErrNotFound = errors.New("not found")

// Owner is the identity pair stamped onto rows and bound into queries.
// Exactly one field is non-nil; the other stays NULL in the database.
type Owner struct {
	UserID  any
	GuestID any
}

func OwnerOf(id identity.Identity) Owner {
	o := Owner{}
	if id.UserID != "" {
		o.UserID = id.UserID
	}
	if id.GuestID != "" {
		o.GuestID = id.GuestID
	}
	return o
}

// Ownership filtering relies on SQL NULL semantics: with one side of the
// Owner pair NULL, `(user_id = $x OR guest_id = $y)` matches only the active
// identity's rows.
