// Package queue provides the bounded, fairness-ordered request queue.
package queue

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19radio/internal/domain/content"
)

// Errors
var (
	ErrDuplicate = errors.New("content already queued")
	ErrFull      = errors.New("queue is full")
)

// Entry represents a pending request.
type Entry struct {
	Item        *content.Item `json:"item"`
	RequesterID string        `json:"requester_id"`
	Demand      bool          `json:"demand"`
	AddedAt     time.Time     `json:"added_at"`
}

// Queue is a bounded request queue with approximate round-robin fairness
// between requesters. It is not safe for concurrent use; the owning
// scheduler serializes access.
type Queue struct {
	entries []Entry
	maxSize int
}

// New creates a queue holding at most maxSize entries.
func New(maxSize int) *Queue {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Queue{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
	}
}

// MaxSize returns the configured capacity.
func (q *Queue) MaxSize() int {
	return q.maxSize
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Enqueue adds a request and returns its position plus any entries evicted
// from the tail.
//
// Demand requests go to the head. Other requests are appended when the
// requester already has at least as many entries as anyone else; otherwise
// they are inserted at (own count + 1) × (distinct requesters).
func (q *Queue) Enqueue(item *content.Item, requesterID string, demand bool) (int, []Entry, error) {
	if q.Contains(item.ID) {
		return -1, nil, ErrDuplicate
	}

	entry := Entry{
		Item:        item,
		RequesterID: requesterID,
		Demand:      demand,
		AddedAt:     time.Now(),
	}

	if demand {
		q.insert(0, entry)
		return 0, q.truncate(), nil
	}

	counts := q.counts()
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	own := counts[requesterID]

	if own >= maxCount {
		if len(q.entries) >= q.maxSize {
			return -1, nil, ErrFull
		}
		q.entries = append(q.entries, entry)
		return len(q.entries) - 1, nil, nil
	}

	offset := (own + 1) * len(counts)
	if offset > len(q.entries) {
		offset = len(q.entries)
	}
	if offset >= q.maxSize {
		return -1, nil, ErrFull
	}
	q.insert(offset, entry)
	return offset, q.truncate(), nil
}

// RemoveByContentID removes the entry for id and reports whether one existed.
func (q *Queue) RemoveByContentID(id string) (Entry, bool) {
	for i, e := range q.entries {
		if e.Item.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

// Withdraw removes every entry of requesterID and returns how many were removed.
func (q *Queue) Withdraw(requesterID string) int {
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.RequesterID == requesterID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// Clear the tail so removed items can be collected.
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = Entry{}
	}
	q.entries = kept
	return removed
}

// List returns a copy of the queued entries in order.
func (q *Queue) List() []Entry {
	result := make([]Entry, len(q.entries))
	copy(result, q.entries)
	return result
}

// Contains reports whether content id is queued.
func (q *Queue) Contains(id string) bool {
	return q.Position(id) >= 0
}

// Position returns the index of content id, or -1.
func (q *Queue) Position(id string) int {
	for i, e := range q.entries {
		if e.Item.ID == id {
			return i
		}
	}
	return -1
}

// CountFor returns the number of entries owned by requesterID.
func (q *Queue) CountFor(requesterID string) int {
	n := 0
	for _, e := range q.entries {
		if e.RequesterID == requesterID {
			n++
		}
	}
	return n
}

func (q *Queue) counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range q.entries {
		counts[e.RequesterID]++
	}
	return counts
}

func (q *Queue) insert(at int, e Entry) {
	q.entries = append(q.entries, Entry{})
	copy(q.entries[at+1:], q.entries[at:])
	q.entries[at] = e
}

// truncate drops entries past maxSize and returns them.
func (q *Queue) truncate() []Entry {
	if len(q.entries) <= q.maxSize {
		return nil
	}
	evicted := make([]Entry, len(q.entries)-q.maxSize)
	copy(evicted, q.entries[q.maxSize:])
	q.entries = q.entries[:q.maxSize]
	return evicted
}
