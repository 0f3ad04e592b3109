// Package queue provides the bounded upload queue and the single worker
// that drains it into the ingestion pipeline.
package queue

import "time"

// Status is the lifecycle state of an Item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is final. Terminal items are never re-entered.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Item is one queued upload.
type Item struct {
	ID           string     `json:"id"`
	Collection   string     `json:"collection,omitempty"`
	FilePath     string     `json:"file_path"`
	FileName     string     `json:"file_name"`
	Status       Status     `json:"status"`
	AddedAt      time.Time  `json:"added_at"`
	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Event names published by the queue.
type Event string

const (
	EventFileAdded      Event = "file_added"
	EventFileProcessing Event = "file_processing"
	EventFileCompleted  Event = "file_completed"
	EventFileFailed     Event = "file_failed"
	EventQueueFull      Event = "queue_full"
)

// Handler receives a copy of the item an event refers to. For queue_full the
// item is the rejected upload and has no ID.
type Handler func(Item)

// Snapshot is an immutable view of the queue state.
type Snapshot struct {
	Capacity  int   `json:"capacity"`
	Size      int   `json:"size"`
	Remaining int   `json:"remaining_capacity"`
	Pending   int   `json:"pending"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Current   *Item `json:"current,omitempty"`
}
