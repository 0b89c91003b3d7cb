package models

// Group represents a set of members who share expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g. "Roommates").
	Name string `json:"name"`

	// Currency is the ISO 4217 code all balances in this group are kept in.
	Currency string `json:"currency"`

	// Members is the list of member ids in this group.
	Members []string `json:"members"`

	// CreatedBy is the user id who created the group.
	CreatedBy string `json:"created_by,omitempty"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`
}

// HasMember reports whether id is a member of the group.
func (g *Group) HasMember(id string) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}
