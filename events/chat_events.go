package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// Change kinds carried by MessageChangedEvent.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// MessageChangedEvent is emitted after a message mutation has been stored
// and broadcast to its room.
type MessageChangedEvent struct {
	RepoID    string    `json:"repo_id"`
	MessageID string    `json:"message_id"`
	Kind      string    `json:"kind"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	MessageChangedV1 = helper.EventDefinition[MessageChangedEvent](
		"chat",
		"MessageChanged",
		"v1",
	)
)
