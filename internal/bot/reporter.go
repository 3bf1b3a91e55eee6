package bot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/doomhound188/dorte/internal/player"
)

// Reporter posts player events to the text channel each track was
// requested from. Report never blocks; each send runs on its own goroutine.
type Reporter struct {
	send func(channelID, content string) error
	log  *zap.Logger
	wg   sync.WaitGroup
}

func NewReporter(session *discordgo.Session, log *zap.Logger) *Reporter {
	return newReporter(func(channelID, content string) error {
		_, err := session.ChannelMessageSend(channelID, content)
		return err
	}, log)
}

func newReporter(send func(channelID, content string) error, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{send: send, log: log.Named("reporter")}
}

func (r *Reporter) Report(ev player.Event) {
	content, ok := eventMessage(ev)
	channelID := ev.Track.TextChannelID
	if !ok || channelID == "" {
		r.log.Debug("player event", zap.Int("kind", int(ev.Kind)), zap.String("guild_id", ev.GuildID))
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.send(channelID, content); err != nil {
			r.log.Warn("failed to post player event",
				zap.String("guild_id", ev.GuildID),
				zap.String("channel_id", channelID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until pending sends are done.
func (r *Reporter) Wait() {
	r.wg.Wait()
}

func eventMessage(ev player.Event) (string, bool) {
	switch ev.Kind {
	case player.EventNowPlaying:
		return fmt.Sprintf("▶️ Now playing: **%s**%s", ev.Track.DisplayTitle(), formatDuration(ev.Track.Duration)), true
	case player.EventFailed:
		var re *player.RetrievalError
		if errors.As(ev.Err, &re) {
			return fmt.Sprintf("%s Skipping **%s**.", retrievalMessage(re.Kind), ev.Track.DisplayTitle()), true
		}
		return fmt.Sprintf("❌ Playback of **%s** failed, moving on to the next song.", ev.Track.DisplayTitle()), true
	default:
		return "", false
	}
}
