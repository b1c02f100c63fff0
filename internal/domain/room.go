// Package domain contains identifiers and naming rules, no transport or lifecycle logic.
package domain

type (
	RoomID       string
	ConnectionID string
)

// OwnRoom is the room a transport may implicitly key by the connection id.
// Such a room is never announced to.
func (id ConnectionID) OwnRoom() RoomID { return RoomID(id) }
