package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/noorimat/realtime-task-board/internal/domain"
	"github.com/noorimat/realtime-task-board/internal/hub"
	"github.com/noorimat/realtime-task-board/internal/protocol"
)

// registerTasks registers the REST surface over the board. Mutations go
// through the hub, so REST writes broadcast to connected websocket sessions
// exactly like intents do.
func registerTasks(api huma.API, h *hub.Hub) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Description: "Lists every task on the board, newest first.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		tasks, err := h.Repo.ListTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *struct {
		Body CreateTaskRequest
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := h.Create(ctx, protocol.CreatePayload{
			Title:       in.Body.Title,
			Description: in.Body.Description,
			Status:      in.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task",
	}, func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := h.Repo.GetTask(ctx, in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update a task",
		Description: "Replaces title, description, and status. The stored id and createdAt are preserved.",
	}, func(ctx context.Context, in *struct {
		ID   string `path:"id"`
		Body UpdateTaskRequest
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := h.Update(ctx, domain.Task{
			ID:          in.ID,
			Title:       in.Body.Title,
			Description: in.Body.Description,
			Status:      in.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete a task",
		Description:   "Removes the task if present. Deleting an unknown id succeeds without effect.",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := h.Delete(ctx, in.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// registerEvents exposes the append-only mutation journal with cursor
// pagination.
func registerEvents(api huma.API, h *hub.Hub) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List mutation events",
		Description: "Returns journal entries after the given cursor, oldest first.",
	}, func(ctx context.Context, in *struct {
		Cursor int64 `query:"cursor" minimum:"0" doc:"Return events with id greater than this value"`
		Limit  int   `query:"limit" minimum:"1" maximum:"500" doc:"Page size, defaults to 100"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := in.Limit
		if limit <= 0 {
			limit = 100
		}
		evts, err := h.Repo.EventsAfter(ctx, limit, in.Cursor)
		if err != nil {
			return nil, handleError(err)
		}
		out := paginatedEvents{Items: make([]EventResponse, 0, len(evts))}
		for _, e := range evts {
			out.Items = append(out.Items, eventResponse(e))
		}
		if len(evts) == limit {
			out.NextCursor = evts[len(evts)-1].ID
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: out}, nil
	})
}
