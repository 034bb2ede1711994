package server

import (
	"encoding/json"

	"strikeline/internal/domain"
)

type SquadListResponse struct {
	Items []domain.Squad `json:"items"`
}

// SquadResponse decorates one squad with its open-task count.
type SquadResponse struct {
	domain.Squad
	OpenTasks int `json:"open_tasks"`
}

type TaskListResponse struct {
	Items []domain.Task `json:"items"`
}

type AdminListResponse struct {
	Items []domain.Admin `json:"items"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    int64           `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

type EventListResponse struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage([]byte(evt.Payload))
		} else {
			raw = evt.Payload
		}
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
		PayloadRaw: raw,
	}
}
