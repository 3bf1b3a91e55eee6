package queue

import (
	"errors"
	"sync"
	"time"
)

// Track is a request to play one audio source. It is owned by the Queue
// from the moment it is pushed until it is popped, removed or cleared.
type Track struct {
	URL           string
	Title         string
	Duration      time.Duration
	RequestedBy   string
	TextChannelID string
	EnqueuedAt    time.Time
}

// DisplayTitle falls back to the URL when no title was resolved.
func (t Track) DisplayTitle() string {
	if t.Title == "" {
		return t.URL
	}
	return t.Title
}

// Queue is a FIFO of tracks. The head is the track loaded into the
// playback slot, or about to be.
type Queue struct {
	tracks []Track
	mu     sync.Mutex
}

var (
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrInvalidIndex = errors.New("invalid track index")
)

func NewQueue() *Queue {
	return &Queue{
		tracks: make([]Track, 0),
	}
}

// Push appends a track and returns its 1-based position.
func (q *Queue) Push(track Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, track)
	return len(q.tracks)
}

func (q *Queue) Head() (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return Track{}, ErrQueueEmpty
	}
	return q.tracks[0], nil
}

func (q *Queue) Pop() (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return Track{}, ErrQueueEmpty
	}
	head := q.tracks[0]
	q.tracks[0] = Track{}
	q.tracks = q.tracks[1:]
	return head, nil
}

// Remove deletes the track at the 0-based index.
func (q *Queue) Remove(index int) (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.tracks) {
		return Track{}, ErrInvalidIndex
	}

	removed := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	return removed, nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

func (q *Queue) List() []Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Track{}, q.tracks...)
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = q.tracks[:0]
}
