package moderation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a queue item id does not exist.
var ErrNotFound = errors.New("queue item not found")

// Priority contributions per trigger category.
const (
	prioritySensitive = 50
	prioritySpam      = 30
	priorityLowRep    = 20
	priorityNewUser   = 10
)

// Item is a queued comment awaiting manual review.
type Item struct {
	ID         string    `json:"id"`
	Comment    Comment   `json:"comment"`
	Reasons    []string  `json:"reasons"`
	Priority   int       `json:"priority"`
	Status     Status    `json:"status"`
	QueuedAt   time.Time `json:"queued_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
	Moderator  string    `json:"moderator,omitempty"`
}

// queueTriggers marks which categories fired for priority scoring.
type queueTriggers struct {
	sensitive bool
	spam      bool
	lowRep    bool
	newUser   bool
}

func (t queueTriggers) priority() int {
	p := 0
	if t.sensitive {
		p += prioritySensitive
	}
	if t.spam {
		p += prioritySpam
	}
	if t.lowRep {
		p += priorityLowRep
	}
	if t.newUser {
		p += priorityNewUser
	}
	return p
}

// Queue is the in-memory review queue, ordered by priority descending.
// Resolved items leave the queue; reputation feedback is applied by
// the caller.
type Queue struct {
	mu    sync.Mutex
	items map[string]*Item
	now   func() time.Time
}

// NewQueue creates an empty review queue.
func NewQueue() *Queue {
	return &Queue{items: make(map[string]*Item), now: time.Now}
}

// Push enqueues a comment with its trigger reasons.
func (q *Queue) Push(c Comment, reasons []string, triggers queueTriggers) Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &Item{
		ID:       uuid.NewString(),
		Comment:  c,
		Reasons:  append([]string(nil), reasons...),
		Priority: triggers.priority(),
		Status:   StatusPendingReview,
		QueuedAt: q.now(),
	}
	q.items[item.ID] = item
	return *item
}

// Pending returns queued items ordered by priority descending, oldest
// first within the same priority.
func (q *Queue) Pending() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Resolve removes the item from the queue with the moderator's
// decision and returns its final state.
func (q *Queue) Resolve(id, moderator string, approve bool) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return Item{}, fmt.Errorf("queue item %q: %w", id, ErrNotFound)
	}
	delete(q.items, id)

	if approve {
		item.Status = StatusApproved
	} else {
		item.Status = StatusBlocked
	}
	item.Moderator = moderator
	item.ResolvedAt = q.now()
	return *item, nil
}
