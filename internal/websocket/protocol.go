package websocket

import (
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/presence"
)

const (
	TypeJoinExhibit    = "join-exhibit"
	TypeSendMessage    = "send-message"
	TypePresenceUpdate = "presence-update"
	TypeReceiveMessage = "receive-message"
	TypeError          = "error"
)

const (
	CodeBadRequest         = "bad_request"
	CodeUnknownType        = "unknown_type"
	CodeExhibitionNotFound = "exhibition_not_found"
	CodeAccessDenied       = "access_denied"
	CodeExpired            = "exhibition_expired"
	CodeNotJoined          = "not_joined"
	CodeEmptyMessage       = "empty_message"
	CodeMessageTooLong     = "message_too_long"
	CodeInternal           = "internal_error"
)

// Inbound is any client frame; fields not used by Type are ignored.
type Inbound struct {
	Type         string `json:"type"`
	ExhibitionID string `json:"exhibitionId"`
	Text         string `json:"text"`
}

type PresenceUpdate struct {
	Type         string           `json:"type"`
	ExhibitionID string           `json:"exhibitionId"`
	Members      []presence.Entry `json:"members"`
}

// ChatMessage is broadcast only, never stored. ID and Timestamp are
// assigned by the hub when it accepts the message.
type ChatMessage struct {
	ID           string    `json:"id"`
	ExhibitionID string    `json:"exhibitionId"`
	SenderID     string    `json:"senderId"`
	Sender       string    `json:"sender"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
}

type ReceiveMessage struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
