package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/jonas747/dca"
	"go.uber.org/zap"

	"github.com/doomhound188/dorte/internal/player"
)

// Voice joins Discord voice channels and plays streams through dca.
type Voice struct {
	session *discordgo.Session
	bitrate int
	log     *zap.Logger

	// discordgo keeps one VoiceConnection per guild; repeated joins
	// return the same handle so callers can compare them.
	mu    sync.Mutex
	conns map[*discordgo.VoiceConnection]*conn
}

func NewVoice(session *discordgo.Session, bitrate int, log *zap.Logger) *Voice {
	if log == nil {
		log = zap.NewNop()
	}
	return &Voice{
		session: session,
		bitrate: bitrate,
		log:     log.Named("voice"),
		conns:   make(map[*discordgo.VoiceConnection]*conn),
	}
}

func (v *Voice) Join(ctx context.Context, guildID, channelID string) (player.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if channelID == "" {
		return nil, errors.New("no voice channel to join")
	}
	vc, err := v.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	v.log.Info("joined voice channel",
		zap.String("guild_id", guildID),
		zap.String("channel_id", channelID))
	return v.track(vc), nil
}

func (v *Voice) track(vc *discordgo.VoiceConnection) *conn {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.conns[vc]; ok {
		return c
	}
	c := &conn{vc: vc, voice: v}
	v.conns[vc] = c
	return c
}

func (v *Voice) forget(c *conn) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conns[c.vc] == c {
		delete(v.conns, c.vc)
	}
}

func (v *Voice) encodeOptions() *dca.EncodeOptions {
	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Application = dca.AudioApplicationAudio
	if v.bitrate > 0 {
		opts.Bitrate = v.bitrate
	}
	return &opts
}

type conn struct {
	vc    *discordgo.VoiceConnection
	voice *Voice
}

func (c *conn) Play(stream io.ReadCloser) (player.Playback, error) {
	enc, err := dca.EncodeMem(stream, c.voice.encodeOptions())
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("start encoder: %w", err)
	}
	if err := c.vc.Speaking(true); err != nil {
		c.voice.log.Warn("failed to set speaking state", zap.Error(err))
	}

	p := &playback{
		enc:    enc,
		source: stream,
		vc:     c.vc,
		log:    c.voice.log,
		done:   make(chan error, 1),
		stop:   make(chan struct{}),
	}
	// dca sends on this from its own goroutine
	streamDone := make(chan error, 1)
	p.stream = dca.NewStream(enc, c.vc, streamDone)
	go p.wait(streamDone)
	return p, nil
}

func (c *conn) Close() error {
	c.voice.forget(c)
	return c.vc.Disconnect()
}

type playback struct {
	enc    *dca.EncodeSession
	stream *dca.StreamingSession
	source io.ReadCloser
	vc     *discordgo.VoiceConnection
	log    *zap.Logger

	done     chan error
	stop     chan struct{}
	stopOnce sync.Once
}

// wait ends the playback on whichever comes first: the stream finishing or
// Stop. A paused dca stream never reports, so Stop must not rely on it.
func (p *playback) wait(streamDone <-chan error) {
	var err error
	select {
	case err = <-streamDone:
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case <-p.stop:
	}

	if stopErr := p.enc.Stop(); stopErr != nil && err == nil {
		p.log.Debug("encoder stop", zap.Error(stopErr))
	}
	p.enc.Cleanup()
	p.source.Close()
	if spErr := p.vc.Speaking(false); spErr != nil {
		p.log.Debug("failed to clear speaking state", zap.Error(spErr))
	}
	p.done <- err
}

func (p *playback) Pause()  { p.stream.SetPaused(true) }
func (p *playback) Resume() { p.stream.SetPaused(false) }

func (p *playback) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *playback) Done() <-chan error { return p.done }
