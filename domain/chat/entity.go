package chat

import (
	"slices"
	"time"
)

// MessageType tags the kind of content carried in a message body.
type MessageType string

const (
	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeFile   MessageType = "file"
	TypeSystem MessageType = "system"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeSystem:
		return true
	}
	return false
}

// DeliveryStatus is the tick state of a message. It only moves forward.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Advance returns the later of s and next.
func (s DeliveryStatus) Advance(next DeliveryStatus) DeliveryStatus {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Reaction is one (emoji, reactor) pair.
type Reaction struct {
	Emoji string `json:"emoji"`
	User  string `json:"user"`
}

// ReadReceipt records when a reader first saw a message.
type ReadReceipt struct {
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

// ReplyRef points back at the message being answered.
type ReplyRef struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// CodeSelection is a range of source lines attached to a message.
type CodeSelection struct {
	FilePath  string `json:"filePath"`
	LineStart int    `json:"lineStart"`
	LineEnd   int    `json:"lineEnd"`
	Code      string `json:"code"`
}

// Message is a chat message in a repository room.
type Message struct {
	ID            string         `gorm:"primarykey;size:36" json:"id"`
	RepoID        string         `gorm:"size:200;not null;index:idx_messages_repo_created" json:"repoId"`
	Sender        string         `gorm:"size:100;not null" json:"sender"`
	Text          string         `gorm:"not null" json:"text"`
	Type          MessageType    `gorm:"size:16;not null;default:text" json:"type"`
	Status        DeliveryStatus `gorm:"size:16;not null;default:sent" json:"status"`
	IsEdited      bool           `gorm:"not null;default:false" json:"isEdited"`
	Reactions     []Reaction     `gorm:"serializer:json" json:"reactions"`
	ReadBy        []ReadReceipt  `gorm:"serializer:json" json:"readBy"`
	ReplyTo       *ReplyRef      `gorm:"serializer:json" json:"replyTo,omitempty"`
	CodeSelection *CodeSelection `gorm:"serializer:json" json:"codeSelection,omitempty"`
	CreatedAt     time.Time      `gorm:"index:idx_messages_repo_created" json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "messages"
}

// ToggleReaction adds the pair when absent and removes it when present.
// It returns the resulting reaction list without mutating m.
func (m *Message) ToggleReaction(emoji, user string) []Reaction {
	pair := Reaction{Emoji: emoji, User: user}
	if i := slices.Index(m.Reactions, pair); i >= 0 {
		return slices.Delete(slices.Clone(m.Reactions), i, i+1)
	}
	out := make([]Reaction, 0, len(m.Reactions)+1)
	out = append(out, m.Reactions...)
	return append(out, pair)
}

// HasReader reports whether username already has a read receipt.
func (m *Message) HasReader(username string) bool {
	return slices.ContainsFunc(m.ReadBy, func(r ReadReceipt) bool {
		return r.Username == username
	})
}

// Patch is a partial update of a message. Nil fields are left unchanged.
type Patch struct {
	Text      *string         `json:"text,omitempty"`
	IsEdited  *bool           `json:"isEdited,omitempty"`
	Reactions *[]Reaction     `json:"reactions,omitempty"`
	ReadBy    *[]ReadReceipt  `json:"readBy,omitempty"`
	Status    *DeliveryStatus `json:"status,omitempty"`
}

// Apply writes the set fields of p onto m. Status never moves backwards.
func (p Patch) Apply(m *Message) {
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.IsEdited != nil {
		m.IsEdited = *p.IsEdited
	}
	if p.Reactions != nil {
		m.Reactions = slices.Clone(*p.Reactions)
		if m.Reactions == nil {
			m.Reactions = []Reaction{}
		}
	}
	if p.ReadBy != nil {
		m.ReadBy = slices.Clone(*p.ReadBy)
		if m.ReadBy == nil {
			m.ReadBy = []ReadReceipt{}
		}
	}
	if p.Status != nil {
		m.Status = m.Status.Advance(*p.Status)
	}
}
