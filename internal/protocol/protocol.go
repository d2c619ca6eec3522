// Package protocol defines the message taxonomy shared by the websocket
// gateway, the synchronization hub, and clients.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/noorimat/realtime-task-board/internal/domain"
)

// Client-to-server intents.
const (
	IntentTaskCreate = "task:create"
	IntentTaskUpdate = "task:update"
	IntentTaskDelete = "task:delete"
)

// Server-to-client events.
const (
	EventTasksLoad   = "tasks:load"
	EventTaskCreated = "task:created"
	EventTaskUpdated = "task:updated"
	EventTaskDeleted = "task:deleted"
)

// Envelope is the wire frame: an event name plus a payload whose shape
// depends on the name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CreatePayload is the body of a task:create intent. The id is always
// server-assigned; clients never send one.
type CreatePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
}

// Message builds an envelope around v.
func Message(event string, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// TaskCreated wraps a freshly inserted task for broadcast.
func TaskCreated(t domain.Task) Envelope {
	env, _ := Message(EventTaskCreated, t)
	return env
}

// TaskUpdated wraps the applied state of an updated task for broadcast.
func TaskUpdated(t domain.Task) Envelope {
	env, _ := Message(EventTaskUpdated, t)
	return env
}

// TaskDeleted wraps a removed task id for broadcast.
func TaskDeleted(id string) Envelope {
	env, _ := Message(EventTaskDeleted, id)
	return env
}

// TasksLoad wraps the full snapshot sent once per connection.
func TasksLoad(tasks []domain.Task) Envelope {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	env, _ := Message(EventTasksLoad, tasks)
	return env
}
