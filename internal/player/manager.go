// Package player runs one playback queue per guild.
//
// Every guild is an actor: a goroutine that owns the guild's queue, voice
// connection and playback slot, and executes requests from an unbuffered
// mailbox one at a time. Requests for different guilds never wait on each
// other. Stream acquisition and voice joins run off the actor and report
// back through the same mailbox, so a stalled source only stalls its guild.
package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doomhound188/dorte/internal/queue"
)

type Config struct {
	// IdleTimeout evicts a guild whose queue has been empty and whose slot
	// has been idle this long. Zero keeps guilds forever.
	IdleTimeout time.Duration
}

type Manager struct {
	voice    Voice
	source   Source
	reporter Reporter
	cfg      Config
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	guilds map[string]*guild
	closed bool
}

func NewManager(voice Voice, source Source, reporter Reporter, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		voice:    voice,
		source:   source,
		reporter: reporter,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		guilds:   make(map[string]*guild),
	}
}

// Enqueue appends track to the guild's queue and returns its 1-based
// position. The first track for an idle guild starts loading immediately.
// Retrieval and playback failures are delivered to the Reporter, not here.
func (m *Manager) Enqueue(ctx context.Context, guildID, channelID string, track queue.Track) (int, error) {
	if track.EnqueuedAt.IsZero() {
		track.EnqueuedAt = time.Now()
	}
	var pos int
	_, err := m.exec(ctx, guildID, true, func(g *guild) {
		pos = g.enqueue(channelID, track)
	})
	return pos, err
}

// Skip ends the current track. The queue then advances as if it had finished.
func (m *Manager) Skip(ctx context.Context, guildID string) (queue.Track, error) {
	var (
		skipped queue.Track
		opErr   error
	)
	ok, err := m.exec(ctx, guildID, false, func(g *guild) {
		skipped, opErr = g.skip()
	})
	if err != nil {
		return queue.Track{}, err
	}
	if !ok {
		return queue.Track{}, &StateConflictError{Op: "skip", State: StateIdle}
	}
	return skipped, opErr
}

func (m *Manager) Pause(ctx context.Context, guildID string) error {
	return m.slotOp(ctx, guildID, "pause", (*guild).pause)
}

func (m *Manager) Resume(ctx context.Context, guildID string) error {
	return m.slotOp(ctx, guildID, "resume", (*guild).resume)
}

// Stop clears the queue and stops the slot. The voice connection stays up
// until the guild is evicted.
func (m *Manager) Stop(ctx context.Context, guildID string) error {
	return m.slotOp(ctx, guildID, "stop", (*guild).stop)
}

// Remove deletes the track at the 1-based position.
func (m *Manager) Remove(ctx context.Context, guildID string, position int) (queue.Track, error) {
	var (
		removed queue.Track
		opErr   error
	)
	ok, err := m.exec(ctx, guildID, false, func(g *guild) {
		removed, opErr = g.remove(position)
	})
	if err != nil {
		return queue.Track{}, err
	}
	if !ok {
		return queue.Track{}, queue.ErrInvalidIndex
	}
	return removed, opErr
}

// Peek returns a snapshot of the guild's queue without going through the
// mailbox. It may lag a mutation that is in flight.
func (m *Manager) Peek(guildID string) []queue.Track {
	g := m.lookup(guildID, false)
	if g == nil {
		return nil
	}
	return g.pending.List()
}

func (m *Manager) State(guildID string) SlotState {
	g := m.lookup(guildID, false)
	if g == nil {
		return StateIdle
	}
	return g.slot()
}

// Guilds reports how many guilds currently hold player state.
func (m *Manager) Guilds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.guilds)
}

// Close stops every guild and waits for the actors to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) slotOp(ctx context.Context, guildID, op string, fn func(*guild) error) error {
	var opErr error
	ok, err := m.exec(ctx, guildID, false, func(g *guild) {
		opErr = fn(g)
	})
	if err != nil {
		return err
	}
	if !ok {
		return &StateConflictError{Op: op, State: StateIdle}
	}
	return opErr
}

// exec runs fn on the guild's actor and waits for it. ok is false when the
// guild has no state and create is false.
func (m *Manager) exec(ctx context.Context, guildID string, create bool, fn func(g *guild)) (bool, error) {
	for {
		g := m.lookup(guildID, create)
		if g == nil {
			if m.isClosed() {
				return false, ErrClosed
			}
			return false, nil
		}

		done := make(chan struct{})
		err := g.post(ctx, func() {
			defer close(done)
			fn(g)
		})
		if errors.Is(err, errGuildGone) {
			// evicted between lookup and hand-off
			continue
		}
		if err != nil {
			return false, err
		}
		<-done
		return true, nil
	}
}

func (m *Manager) lookup(guildID string, create bool) *guild {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	g, ok := m.guilds[guildID]
	if !ok && create {
		g = newGuild(m, guildID)
		m.guilds[guildID] = g
		m.wg.Add(1)
		go g.run()
	}
	return g
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// evict removes g from the map. After it returns true no request can reach g.
func (m *Manager) evict(g *guild) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.guilds[g.id] != g {
		return false
	}
	delete(m.guilds, g.id)
	g.markDone()
	return true
}
