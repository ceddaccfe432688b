package notify

import "github.com/grabfrom/core/internal/task"

// Event types pushed to connected UI clients.
const (
	EventTaskUpdate   = "task_update"
	EventTaskRemoved  = "task_removed"
	EventTasksCleared = "tasks_cleared"
)

// QueueState summarizes scheduler occupancy for the UI header.
type QueueState struct {
	Pending int `json:"pending"`
	Active  int `json:"active"`
}

// Event is one push message. Exactly one payload field is set, matching
// the Type.
type Event struct {
	Type    string         `json:"type"`
	Task    *task.Snapshot `json:"task,omitempty"`
	TaskID  string         `json:"task_id,omitempty"`
	TaskIDs []string       `json:"task_ids,omitempty"`
	Queue   *QueueState    `json:"queue,omitempty"`
}

// TaskUpdated builds the event sent on every status transition and on
// throttled progress ticks.
func TaskUpdated(snap task.Snapshot, queue QueueState) Event {
	return Event{
		Type:  EventTaskUpdate,
		Task:  &snap,
		Queue: &queue,
	}
}

// TaskRemoved builds the event sent when a task leaves the table.
func TaskRemoved(taskID string) Event {
	return Event{
		Type:   EventTaskRemoved,
		TaskID: taskID,
	}
}

// TasksCleared builds the event sent when completed tasks are swept.
func TasksCleared(taskIDs []string) Event {
	return Event{
		Type:    EventTasksCleared,
		TaskIDs: taskIDs,
	}
}

// Publisher is the push side the task manager talks to. Implementations
// must never block: a slow or absent UI cannot stall task execution.
type Publisher interface {
	Publish(event Event)
}

// Discard is a Publisher that drops every event, for tests and headless
// runs.
type Discard struct{}

func (Discard) Publish(Event) {}
