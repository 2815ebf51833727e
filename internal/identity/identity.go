// Package identity defines the principal a request acts as: either an
// authenticated user or an anonymous guest, never both.
package identity

// Identity is a tagged union. Exactly one of UserID and GuestID is set.
type Identity struct {
	UserID  string
	GuestID string
}

func Authenticated(userID string) Identity {
	return Identity{UserID: userID}
}

func Guest(guestID string) Identity {
	return Identity{GuestID: guestID}
}

func (id Identity) IsGuest() bool {
	return id.UserID == "" && id.GuestID != ""
}

func (id Identity) IsAuthenticated() bool {
	return id.UserID != ""
}

// Valid reports whether exactly one side of the union is set.
func (id Identity) Valid() bool {
	return (id.UserID == "") != (id.GuestID == "")
}
