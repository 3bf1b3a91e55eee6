package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/doomhound188/dorte/internal/config"
	"github.com/doomhound188/dorte/internal/player"
	"github.com/doomhound188/dorte/internal/queue"
)

const (
	commandTimeout = 30 * time.Second
	// Discord rejects longer message bodies.
	maxMessageLen = 2000
)

// Player is the per-guild playback controller.
type Player interface {
	Enqueue(ctx context.Context, guildID, channelID string, track queue.Track) (int, error)
	Skip(ctx context.Context, guildID string) (queue.Track, error)
	Pause(ctx context.Context, guildID string) error
	Resume(ctx context.Context, guildID string) error
	Stop(ctx context.Context, guildID string) error
	Remove(ctx context.Context, guildID string, position int) (queue.Track, error)
	Peek(guildID string) []queue.Track
	State(guildID string) player.SlotState
}

// Resolver validates a link and fetches the track's metadata.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (queue.Track, error)
}

type Chatter interface {
	Send(ctx context.Context, userID, text string) (string, error)
	Reset(userID string) bool
}

// Deps are the collaborators behind the commands. Chat may be nil.
type Deps struct {
	Player   Player
	Resolver Resolver
	Chat     Chatter
}

type Bot struct {
	session  *discordgo.Session
	cfg      *config.Config
	log      *zap.Logger
	prefix   string
	player   Player
	resolver Resolver
	chat     Chatter
	// emotes returns the guild's custom emotes by name, rendered for messages.
	emotes func(guildID string) (map[string]string, error)

	mu          sync.Mutex
	voiceStates map[string]string // guildID:userID -> voice channel
	onClose     []func()
}

func New(session *discordgo.Session, cfg *config.Config, deps Deps, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bot{
		session:     session,
		cfg:         cfg,
		log:         log.Named("bot"),
		prefix:      cfg.CommandPrefix,
		player:      deps.Player,
		resolver:    deps.Resolver,
		chat:        deps.Chat,
		voiceStates: make(map[string]string),
	}
	b.emotes = b.guildEmotes

	session.AddHandler(b.readyHandler)
	session.AddHandler(b.guildCreateHandler)
	session.AddHandler(b.voiceStateUpdateHandler)
	session.AddHandler(b.messageHandler)
	session.AddHandler(b.interactionHandler)
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	return b
}

// Run opens the gateway and blocks until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	<-ctx.Done()
	return b.close()
}

// OnClose registers fn to run when Run returns, in registration order and
// before the gateway is closed.
func (b *Bot) OnClose(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = append(b.onClose, fn)
}

func (b *Bot) close() error {
	b.mu.Lock()
	hooks := b.onClose
	b.onClose = nil
	b.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	b.log.Info("closing discord session")
	return b.session.Close()
}

func (b *Bot) readyHandler(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("bot is ready",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))

	if !b.cfg.RegisterSlashCommands {
		return
	}
	cmds, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.cfg.DiscordGuildID, slashCommands())
	if err != nil {
		b.log.Error("failed to register slash commands", zap.Error(err))
		return
	}
	b.log.Info("slash commands registered",
		zap.Int("count", len(cmds)),
		zap.String("guild_id", b.cfg.DiscordGuildID))
}

func (b *Bot) guildCreateHandler(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != "" {
			b.voiceStates[g.ID+":"+vs.UserID] = vs.ChannelID
		}
	}
}

func (b *Bot) voiceStateUpdateHandler(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := vsu.GuildID + ":" + vsu.UserID
	if vsu.ChannelID == "" {
		delete(b.voiceStates, key)
		return
	}
	b.voiceStates[key] = vsu.ChannelID
}

// voiceChannel finds the voice channel userID is connected to, or "".
func (b *Bot) voiceChannel(guildID, userID string) string {
	b.mu.Lock()
	channelID := b.voiceStates[guildID+":"+userID]
	b.mu.Unlock()
	if channelID != "" {
		return channelID
	}

	if vs, err := b.session.State.VoiceState(guildID, userID); err == nil && vs != nil {
		return vs.ChannelID
	}
	return ""
}

func (b *Bot) guildEmotes(guildID string) (map[string]string, error) {
	emojis, err := b.session.GuildEmojis(guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch guild emojis: %w", err)
	}
	out := make(map[string]string, len(emojis))
	for _, e := range emojis {
		out[e.Name] = e.MessageFormat()
	}
	return out, nil
}

func (b *Bot) messageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	req, ok := parseMessage(b.prefix, m.Content)
	if !ok {
		return
	}
	req.GuildID = m.GuildID
	req.ChannelID = m.ChannelID
	req.UserID = m.Author.ID

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	for _, part := range splitMessage(b.reply(ctx, req)) {
		if _, err := s.ChannelMessageSendReply(m.ChannelID, part, m.Reference()); err != nil {
			b.log.Warn("failed to send reply", zap.String("channel_id", m.ChannelID), zap.Error(err))
			return
		}
	}
}

func (b *Bot) interactionHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	req := parseInteraction(i)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.log.Warn("failed to defer interaction", zap.String("command", req.Command), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	parts := splitMessage(b.reply(ctx, req))
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &parts[0]}); err != nil {
		b.log.Warn("failed to edit interaction response", zap.Error(err))
		return
	}
	for _, part := range parts[1:] {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: part}); err != nil {
			b.log.Warn("failed to send followup", zap.Error(err))
			return
		}
	}
}

// reply runs req and renders the result or the error for the user.
func (b *Bot) reply(ctx context.Context, req Request) string {
	resp, err := b.HandleCommand(ctx, req)
	if err != nil {
		b.log.Info("command failed",
			zap.String("command", req.Command),
			zap.String("guild_id", req.GuildID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return b.userMessage(err)
	}
	return resp
}

// splitMessage cuts text into chunks Discord accepts, preferring line breaks.
func splitMessage(text string) []string {
	if text == "" {
		return []string{"✅"}
	}
	var parts []string
	for len(text) > maxMessageLen {
		cut := strings.LastIndex(text[:maxMessageLen], "\n")
		if cut <= 0 {
			cut = maxMessageLen
			// don't split a UTF-8 sequence
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
