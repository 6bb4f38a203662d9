package model

import "encoding/json"

// Event names the kind of a channel message.
type Event string

const (
	EventBoardListRequest Event = "boardListRequest"
	EventBoardList        Event = "boardList"
	EventBoardDataRequest Event = "boardDataRequest"
	EventBoardData        Event = "boardData"
	EventBoardUpdate      Event = "boardUpdate"
	EventBoxCreated       Event = "boxCreated"
	EventUpdateApplied    Event = "updateApplied"
	EventBoxDelete        Event = "boxDelete"
	EventBoxDeleted       Event = "boxDeleted"
	EventError            Event = "error"
)

// Message is the envelope exchanged over a Channel. Which fields are set
// depends on Event.
type Message struct {
	Event     Event           `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	BoardID   string          `json:"boardId,omitempty"`
	UUID      string          `json:"uuid,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`
	Type      BoxType         `json:"type,omitempty"`
	Boards    []BoardSummary  `json:"boards,omitempty"`
	Board     *Board          `json:"board,omitempty"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// BoardUpdate is a decoded boardUpdate message.
type BoardUpdate struct {
	BoardID string
	UUID    string
	State   Patch
	Type    BoxType
}

// Message encodes u as a boardUpdate envelope.
func (u BoardUpdate) Message() Message {
	return Message{
		Event:   EventBoardUpdate,
		BoardID: u.BoardID,
		UUID:    u.UUID,
		State:   u.State.Encode(),
		Type:    u.Type,
	}
}

// UpdateFromBox builds the notification that carries box's full state.
func UpdateFromBox(boardID string, box Box) BoardUpdate {
	return BoardUpdate{
		BoardID: boardID,
		UUID:    box.UUID,
		State:   box.State.Patch(),
		Type:    box.Type,
	}
}

// DecodeUpdate reads a boardUpdate envelope.
func DecodeUpdate(m Message) (BoardUpdate, error) {
	p, err := DecodePatch(m.State)
	if err != nil {
		return BoardUpdate{}, err
	}
	return BoardUpdate{BoardID: m.BoardID, UUID: m.UUID, State: p, Type: m.Type}, nil
}

// ErrorMessage builds an error reply for err.
func ErrorMessage(requestID string, err error) Message {
	return Message{
		Event:     EventError,
		RequestID: requestID,
		Code:      ErrorCode(err),
		Error:     err.Error(),
	}
}
