package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/doomhound188/dorte/internal/queue"
)

var errGuildGone = errors.New("guild player has shut down")

// guild is the per-guild actor. Every field below state is owned by the
// run goroutine.
type guild struct {
	id  string
	m   *Manager
	log *zap.Logger

	inbox    chan func()
	done     chan struct{}
	doneOnce sync.Once

	pending *queue.Queue
	state   atomic.Int32

	channelID  string
	conn       Conn
	playback   Playback
	cancelLoad context.CancelFunc
	current    queue.Track
	// headOwned is set while the queue head belongs to the slot and must be
	// popped when the slot finishes with it.
	headOwned bool
	// gen invalidates callbacks from loads and playbacks that were
	// abandoned by skip or stop.
	gen  uint64
	idle *time.Timer
}

func newGuild(m *Manager, id string) *guild {
	return &guild{
		id:      id,
		m:       m,
		log:     m.log.With(zap.String("guild_id", id)),
		inbox:   make(chan func()),
		done:    make(chan struct{}),
		pending: queue.NewQueue(),
	}
}

func (g *guild) run() {
	defer g.m.wg.Done()
	defer g.shutdown()

	for {
		select {
		case fn := <-g.inbox:
			fn()
		case <-g.idleC():
			g.idle = nil
			if g.slot() == StateIdle && g.pending.Len() == 0 && g.m.evict(g) {
				g.log.Info("evicting idle guild player")
				return
			}
		case <-g.m.ctx.Done():
			return
		}
	}
}

func (g *guild) post(ctx context.Context, fn func()) error {
	select {
	case g.inbox <- fn:
		return nil
	case <-g.done:
		return errGuildGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *guild) markDone() {
	g.doneOnce.Do(func() { close(g.done) })
}

func (g *guild) shutdown() {
	g.markDone()
	g.disarmIdle()
	g.gen++
	if g.cancelLoad != nil {
		g.cancelLoad()
		g.cancelLoad = nil
	}
	if g.playback != nil {
		g.playback.Stop()
		g.playback = nil
	}
	g.dropConn()
	g.setSlot(StateIdle)
}

func (g *guild) slot() SlotState {
	return SlotState(g.state.Load())
}

func (g *guild) setSlot(s SlotState) {
	g.state.Store(int32(s))
}

func (g *guild) idleC() <-chan time.Time {
	if g.idle == nil {
		return nil
	}
	return g.idle.C
}

func (g *guild) armIdle() {
	if g.m.cfg.IdleTimeout <= 0 || g.idle != nil {
		return
	}
	g.idle = time.NewTimer(g.m.cfg.IdleTimeout)
}

func (g *guild) disarmIdle() {
	if g.idle != nil {
		g.idle.Stop()
		g.idle = nil
	}
}

func (g *guild) dropConn() {
	if g.conn == nil {
		return
	}
	if err := g.conn.Close(); err != nil {
		g.log.Warn("failed to close voice connection", zap.Error(err))
	}
	g.conn = nil
}

func (g *guild) report(ev Event) {
	if g.m.reporter == nil {
		return
	}
	ev.GuildID = g.id
	g.m.reporter.Report(ev)
}

func (g *guild) enqueue(channelID string, track queue.Track) int {
	g.disarmIdle()
	if g.conn == nil && g.slot() == StateIdle {
		g.channelID = channelID
	}

	pos := g.pending.Push(track)
	g.log.Info("track enqueued",
		zap.String("title", track.DisplayTitle()),
		zap.Int("position", pos))

	if g.slot() == StateIdle {
		g.advance()
	}
	return pos
}

// advance loads the queue head into the slot. It is a no-op unless the slot
// is idle, and arms the idle timer when there is nothing to load.
func (g *guild) advance() {
	if g.slot() != StateIdle {
		return
	}
	head, err := g.pending.Head()
	if err != nil {
		g.armIdle()
		return
	}

	g.disarmIdle()
	g.gen++
	g.current = head
	g.headOwned = true
	g.setSlot(StateLoading)

	ctx, cancel := context.WithCancel(g.m.ctx)
	g.cancelLoad = cancel
	go g.load(ctx, g.gen, head, g.conn, g.channelID)
}

// load runs off the actor.
func (g *guild) load(ctx context.Context, gen uint64, track queue.Track, conn Conn, channelID string) {
	var (
		joined bool
		stream io.ReadCloser
		err    error
	)
	if conn == nil {
		conn, err = g.m.voice.Join(ctx, g.id, channelID)
		if err != nil {
			conn = nil
			err = &PlaybackError{Err: fmt.Errorf("join voice channel: %w", err)}
		} else {
			joined = true
		}
	}
	if err == nil {
		stream, err = g.m.source.Acquire(ctx, track)
	}

	postErr := g.post(context.Background(), func() {
		g.loaded(gen, conn, joined, stream, err)
	})
	if postErr != nil {
		if stream != nil {
			stream.Close()
		}
		if joined {
			conn.Close()
		}
	}
}

func (g *guild) loaded(gen uint64, conn Conn, joined bool, stream io.ReadCloser, err error) {
	if joined {
		switch {
		case g.conn == nil:
			g.conn = conn
		case g.conn != conn:
			// another load joined first
			if err := conn.Close(); err != nil {
				g.log.Warn("failed to close extra voice connection", zap.Error(err))
			}
		}
	}
	if gen != g.gen {
		if stream != nil {
			stream.Close()
		}
		return
	}
	if g.cancelLoad != nil {
		g.cancelLoad()
		g.cancelLoad = nil
	}

	if err != nil {
		var re *RetrievalError
		var pe *PlaybackError
		if !errors.As(err, &re) && !errors.As(err, &pe) {
			err = &RetrievalError{Kind: RetrievalUnknown, Err: err}
		}
		g.finish(err)
		return
	}

	pb, err := g.conn.Play(stream)
	if err != nil {
		stream.Close()
		g.dropConn()
		g.finish(&PlaybackError{Err: err})
		return
	}

	g.playback = pb
	g.setSlot(StatePlaying)
	g.log.Info("now playing", zap.String("title", g.current.DisplayTitle()))
	g.report(Event{Kind: EventNowPlaying, Track: g.current})

	go func() {
		err := <-pb.Done()
		_ = g.post(context.Background(), func() {
			if gen != g.gen {
				return
			}
			if err != nil {
				err = &PlaybackError{Err: err}
			}
			g.finish(err)
		})
	}()
}

// finish releases the slot after completion, skip or failure, drops the
// finished head and advances. Failed tracks are never retried.
func (g *guild) finish(err error) {
	track := g.current
	if g.headOwned {
		g.pending.Pop()
		g.headOwned = false
	}
	g.current = queue.Track{}
	g.playback = nil
	if g.cancelLoad != nil {
		g.cancelLoad()
		g.cancelLoad = nil
	}
	g.setSlot(StateIdle)

	if err != nil {
		g.log.Warn("track dropped", zap.String("title", track.DisplayTitle()), zap.Error(err))
		g.report(Event{Kind: EventFailed, Track: track, Err: err})
	}
	if g.pending.Len() == 0 {
		g.report(Event{Kind: EventDrained})
	}
	g.advance()
}

func (g *guild) skip() (queue.Track, error) {
	switch g.slot() {
	case StateIdle:
		return queue.Track{}, &StateConflictError{Op: "skip", State: StateIdle}
	case StateLoading:
		skipped := g.current
		g.gen++
		g.finish(nil)
		return skipped, nil
	default:
		if !g.headOwned {
			// already stopping
			return queue.Track{}, &StateConflictError{Op: "skip", State: StateIdle}
		}
		g.playback.Stop()
		return g.current, nil
	}
}

func (g *guild) pause() error {
	if s := g.slot(); s != StatePlaying {
		return &StateConflictError{Op: "pause", State: s}
	}
	g.playback.Pause()
	g.setSlot(StatePaused)
	return nil
}

func (g *guild) resume() error {
	if s := g.slot(); s != StatePaused {
		return &StateConflictError{Op: "resume", State: s}
	}
	g.playback.Resume()
	g.setSlot(StatePlaying)
	return nil
}

func (g *guild) stop() error {
	if g.slot() == StateIdle && g.pending.Len() == 0 {
		return &StateConflictError{Op: "stop", State: StateIdle}
	}

	g.pending.Clear()
	g.headOwned = false

	switch g.slot() {
	case StateLoading:
		g.gen++
		g.cancelLoad()
		g.cancelLoad = nil
		g.current = queue.Track{}
		g.setSlot(StateIdle)
		g.advance()
	case StatePlaying, StatePaused:
		g.playback.Stop()
	}
	return nil
}

func (g *guild) remove(position int) (queue.Track, error) {
	if position == 1 && g.headOwned {
		return queue.Track{}, ErrRemoveCurrent
	}
	return g.pending.Remove(position - 1)
}
