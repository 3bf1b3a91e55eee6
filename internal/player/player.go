package player

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/doomhound188/dorte/internal/queue"
)

type SlotState int32

const (
	StateIdle SlotState = iota
	StateLoading
	StatePlaying
	StatePaused
)

func (s SlotState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("SlotState(%d)", int32(s))
	}
}

// Voice establishes the per-guild transport.
type Voice interface {
	Join(ctx context.Context, guildID, channelID string) (Conn, error)
}

// Conn is a joined voice channel. A guild has at most one, and plays at most
// one stream on it at a time.
type Conn interface {
	Play(stream io.ReadCloser) (Playback, error)
	Close() error
}

// Playback is an active stream on a Conn. Done yields exactly once: nil when
// the stream ended or was stopped, or the runtime error that ended it.
type Playback interface {
	Pause()
	Resume()
	Stop()
	Done() <-chan error
}

// Source opens the audio for a track. Failures should be *RetrievalError.
type Source interface {
	Acquire(ctx context.Context, track queue.Track) (io.ReadCloser, error)
}

type EventKind int

const (
	EventNowPlaying EventKind = iota
	EventFailed
	EventDrained
)

type Event struct {
	Kind    EventKind
	GuildID string
	Track   queue.Track
	Err     error
}

type Reporter interface {
	Report(ev Event)
}

type ReporterFunc func(ev Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }

type RetrievalKind int

const (
	RetrievalUnknown RetrievalKind = iota
	RetrievalAccessDenied
	RetrievalRateLimited
)

func (k RetrievalKind) String() string {
	switch k {
	case RetrievalAccessDenied:
		return "access denied"
	case RetrievalRateLimited:
		return "rate limited"
	default:
		return "unknown"
	}
}

// RetrievalError reports that a track's metadata or stream could not be
// fetched.
type RetrievalError struct {
	Kind RetrievalKind
	Err  error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed (%s): %v", e.Kind, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// PlaybackError is a failure raised by the transport or the slot itself.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback failed: %v", e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

var (
	ErrStateConflict = errors.New("player is not in a valid state for this operation")
	ErrRemoveCurrent = errors.New("cannot remove the track that is currently loaded, skip it instead")
	ErrClosed        = errors.New("player manager is closed")
)

// StateConflictError is returned when an operation does not apply to the
// slot's current state. Nothing is changed.
type StateConflictError struct {
	Op    string
	State SlotState
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

func (e *StateConflictError) Is(target error) bool {
	return target == ErrStateConflict
}
