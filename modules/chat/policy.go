package chat

import domain "github.com/example/repochat/domain/chat"

// Policy decides whether actor may edit or delete msg.
type Policy interface {
	CanModify(actor string, msg *domain.Message) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(actor string, msg *domain.Message) bool

// CanModify calls f.
func (f PolicyFunc) CanModify(actor string, msg *domain.Message) bool {
	return f(actor, msg)
}

// AllowRoomMembers lets any member of the room moderate any message.
var AllowRoomMembers Policy = PolicyFunc(func(string, *domain.Message) bool {
	return true
})

// SenderOnly restricts edits and deletes to the original sender.
var SenderOnly Policy = PolicyFunc(func(actor string, msg *domain.Message) bool {
	return actor != "" && actor == msg.Sender
})
