package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/doomhound188/dorte/internal/audio"
	"github.com/doomhound188/dorte/internal/gacha"
	"github.com/doomhound188/dorte/internal/player"
)

// Request is one command invocation, from a prefixed message or a slash
// command.
type Request struct {
	Command string
	// Text is everything after the command name.
	Text      string
	GuildID   string
	ChannelID string
	UserID    string
}

func (r Request) args() []string {
	return strings.Fields(r.Text)
}

// parseMessage reads "<prefix><command> <text>".
func parseMessage(prefix, content string) (Request, bool) {
	if !strings.HasPrefix(content, prefix) {
		return Request{}, false
	}
	body := strings.TrimSpace(content[len(prefix):])
	if body == "" {
		return Request{}, false
	}
	command, text, _ := strings.Cut(body, " ")
	if i := strings.IndexAny(command, "\n\t"); i >= 0 {
		command, text = command[:i], command[i+1:]+" "+text
	}
	return Request{
		Command: strings.ToLower(command),
		Text:    strings.TrimSpace(text),
	}, true
}

func (b *Bot) HandleCommand(ctx context.Context, req Request) (string, error) {
	switch req.Command {
	case "play":
		return b.handlePlay(ctx, req)
	case "skip":
		return b.handleSkip(ctx, req)
	case "pause":
		return b.handlePause(ctx, req)
	case "resume":
		return b.handleResume(ctx, req)
	case "stop":
		return b.handleStop(ctx, req)
	case "queue":
		return b.handleQueue(req)
	case "remove":
		return b.handleRemove(ctx, req)
	case "gacha":
		return b.handleGacha(req)
	case "chat":
		return b.handleChat(ctx, req)
	case "reset":
		return b.handleReset(req)
	case "help":
		return b.handleHelp(), nil
	default:
		return "", ErrUnknownCommand
	}
}

func (b *Bot) handlePlay(ctx context.Context, req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrGuildOnly
	}
	args := req.args()
	if len(args) == 0 {
		return "", ErrMissingLocator
	}
	locator := args[0]
	if _, err := audio.ValidateURL(locator); err != nil {
		return "", err
	}

	voiceChannelID := b.voiceChannel(req.GuildID, req.UserID)
	if voiceChannelID == "" {
		return "", ErrNotInVoice
	}

	track, err := b.resolver.Resolve(ctx, locator)
	if err != nil {
		return "", err
	}
	track.RequestedBy = req.UserID
	track.TextChannelID = req.ChannelID

	pos, err := b.player.Enqueue(ctx, req.GuildID, voiceChannelID, track)
	if err != nil {
		return "", err
	}
	if pos == 1 {
		return fmt.Sprintf("🎵 Added **%s** to the queue, starting now!", track.DisplayTitle()), nil
	}
	return fmt.Sprintf("🎵 Added **%s** to the queue (position %d)!", track.DisplayTitle(), pos), nil
}

func (b *Bot) handleSkip(ctx context.Context, req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrGuildOnly
	}
	skipped, err := b.player.Skip(ctx, req.GuildID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("⏭️ Skipped **%s**.", skipped.DisplayTitle()), nil
}

func (b *Bot) handlePause(ctx context.Context, req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrGuildOnly
	}
	if err := b.player.Pause(ctx, req.GuildID); err != nil {
		return "", err
	}
	return "⏸️ Playback paused.", nil
}

func (b *Bot) handleResume(ctx context.Context, req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrGuildOnly
	}
	if err := b.player.Resume(ctx, req.GuildID); err != nil {
		return "", err
	}
	return "▶️ Playback resumed.", nil
}

func (b *Bot) handleStop(ctx context.Context, req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrGuildOnly
	}
	if err := b.player.Stop(ctx, req.GuildID); err != nil {
		return "", err
	}
	return "⏹️ Playback stopped and queue cleared.", nil
}

func (b *Bot) handleQueue(req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrGuildOnly
	}
	tracks := b.player.Peek(req.GuildID)
	if len(tracks) == 0 {
		return "The queue is empty.", nil
	}

	var sb strings.Builder
	head := tracks[0]
	switch b.player.State(req.GuildID) {
	case player.StatePaused:
		sb.WriteString("⏸️ Paused: ")
	case player.StatePlaying:
		sb.WriteString("🎶 Now playing: ")
	default:
		sb.WriteString("⏳ Up first: ")
	}
	fmt.Fprintf(&sb, "**%s**%s\n", head.DisplayTitle(), formatDuration(head.Duration))

	if len(tracks) > 1 {
		sb.WriteString("\nUp next:\n")
		for i, track := range tracks[1:] {
			fmt.Fprintf(&sb, "%d. %s%s\n", i+2, track.DisplayTitle(), formatDuration(track.Duration))
		}
	}
	return sb.String(), nil
}

func (b *Bot) handleRemove(ctx context.Context, req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrGuildOnly
	}
	args := req.args()
	if len(args) == 0 {
		return "", ErrInvalidNumber
	}
	position, err := strconv.Atoi(args[0])
	if err != nil || position < 1 {
		return "", ErrInvalidNumber
	}

	removed, err := b.player.Remove(ctx, req.GuildID, position)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🗑️ Removed **%s** from the queue.", removed.DisplayTitle()), nil
}

func (b *Bot) handleGacha(req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrGuildOnly
	}
	available, err := b.emotes(req.GuildID)
	if err != nil {
		return "", err
	}
	emotes, err := gacha.LookupEmotes(func(name string) (string, bool) {
		s, ok := available[name]
		return s, ok
	})
	if err != nil {
		return "", err
	}
	return gacha.DrawDefault().Render(emotes), nil
}

func (b *Bot) handleChat(ctx context.Context, req Request) (string, error) {
	if b.chat == nil {
		return "", ErrChatDisabled
	}
	return b.chat.Send(ctx, req.UserID, req.Text)
}

func (b *Bot) handleReset(req Request) (string, error) {
	if b.chat == nil {
		return "", ErrChatDisabled
	}
	if b.chat.Reset(req.UserID) {
		return "🧹 Conversation cleared.", nil
	}
	return "There was no conversation to clear.", nil
}

func (b *Bot) handleHelp() string {
	p := b.prefix
	var sb strings.Builder
	sb.WriteString("**Commands** (also available as slash commands):\n\n")
	sb.WriteString("**Music** (join a voice channel first):\n")
	fmt.Fprintf(&sb, "• `%splay <YouTube link>` - Add a song to the queue\n", p)
	fmt.Fprintf(&sb, "• `%sskip` - Skip the current song\n", p)
	fmt.Fprintf(&sb, "• `%spause` / `%sresume` - Pause or resume playback\n", p, p)
	fmt.Fprintf(&sb, "• `%sstop` - Stop playback and clear the queue\n", p)
	fmt.Fprintf(&sb, "• `%squeue` - Show the queue\n", p)
	fmt.Fprintf(&sb, "• `%sremove <number>` - Remove a song from the queue\n", p)
	sb.WriteString("\n**Fun:**\n")
	fmt.Fprintf(&sb, "• `%sgacha` - Draw ten, with at least one Okayge guaranteed\n", p)
	if b.chat != nil {
		sb.WriteString("\n**Chat:**\n")
		fmt.Fprintf(&sb, "• `%schat <message>` - Talk to me\n", p)
		fmt.Fprintf(&sb, "• `%sreset` - Forget our conversation\n", p)
	}
	return sb.String()
}

// formatDuration renders " (m:ss)", or "" for unknown durations.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf(" (%d:%02d:%02d)", h, m, s)
	}
	return fmt.Sprintf(" (%d:%02d)", m, s)
}
