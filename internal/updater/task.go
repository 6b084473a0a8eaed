package updater

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of background work a task asks for.
type Kind string

const (
	KindSegmentRefresh Kind = "segment_refresh"
	KindChatVector     Kind = "chat_vector"
	KindMessageVector  Kind = "message_vector"
)

// Task is one unit of background work on a single entity.
type Task struct {
	JobID      string
	Kind       Kind
	EntityID   int64
	EnqueuedAt time.Time
}

func newTask(kind Kind, id int64) Task {
	return Task{JobID: uuid.NewString(), Kind: kind, EntityID: id, EnqueuedAt: time.Now()}
}

// TaskSegmentRefresh rebuilds today's segment of a chat.
func TaskSegmentRefresh(chatID int64) Task { return newTask(KindSegmentRefresh, chatID) }

// TaskChatVector recomputes a chat's vector.
func TaskChatVector(chatID int64) Task { return newTask(KindChatVector, chatID) }

// TaskMessageVector computes a message's vector.
func TaskMessageVector(messageID int64) Task { return newTask(KindMessageVector, messageID) }

// key identifies tasks that coalesce: same kind on the same entity.
func (t Task) key() string {
	return string(t.Kind) + ":" + strconv.FormatInt(t.EntityID, 10)
}

// Handler runs tasks.
type Handler interface {
	HandleTask(ctx context.Context, t Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t Task) error

// HandleTask calls f.
func (f HandlerFunc) HandleTask(ctx context.Context, t Task) error { return f(ctx, t) }
