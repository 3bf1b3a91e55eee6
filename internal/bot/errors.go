package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/doomhound188/dorte/internal/audio"
	"github.com/doomhound188/dorte/internal/chat"
	"github.com/doomhound188/dorte/internal/gacha"
	"github.com/doomhound188/dorte/internal/player"
	"github.com/doomhound188/dorte/internal/queue"
)

var (
	ErrMissingLocator = errors.New("no link given")
	ErrNotInVoice     = errors.New("user is not in a voice channel")
	ErrGuildOnly      = errors.New("command only works in a server")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidNumber  = errors.New("invalid track number")
	ErrChatDisabled   = errors.New("chat is not configured")
)

// userMessage turns a command error into the reply shown in Discord.
func (b *Bot) userMessage(err error) string {
	var (
		retrieval *player.RetrievalError
		conflict  *player.StateConflictError
		missing   *gacha.MissingEmotesError
	)
	switch {
	case errors.Is(err, ErrMissingLocator), errors.Is(err, audio.ErrInvalidLocator):
		return "Please provide a valid YouTube link!"
	case errors.Is(err, ErrNotInVoice):
		return "You must join a voice channel first!"
	case errors.Is(err, ErrGuildOnly):
		return "This command can only be used in a server."
	case errors.Is(err, ErrUnknownCommand):
		return fmt.Sprintf("Unknown command. Type %shelp for available commands.", b.prefix)
	case errors.Is(err, ErrInvalidNumber):
		return "Please give the track number from the queue list."
	case errors.As(err, &retrieval):
		return retrievalMessage(retrieval.Kind)
	case errors.As(err, &conflict):
		return conflictMessage(conflict)
	case errors.Is(err, player.ErrRemoveCurrent):
		return "That track is playing right now, use skip instead."
	case errors.Is(err, queue.ErrInvalidIndex):
		return "There is no track at that position."
	case errors.As(err, &missing):
		names := make([]string, len(missing.Missing))
		for i, o := range missing.Missing {
			names[i] = o.String()
		}
		return "❌ This server is missing the required emotes: " + strings.Join(names, ", ")
	case errors.Is(err, ErrChatDisabled):
		return "Chat is not enabled on this bot."
	case errors.Is(err, chat.ErrEmptyMessage):
		return "Say something after the command!"
	case errors.Is(err, chat.ErrSlowDown):
		return "You're sending messages too fast, please wait a moment."
	case errors.Is(err, chat.ErrBlocked):
		return "Sorry, your message may contain inappropriate content, please rephrase it."
	case errors.Is(err, chat.ErrAuth):
		return "Error: the chat API key is misconfigured, please check the environment settings."
	case errors.Is(err, chat.ErrQuota):
		return "Sorry, the API quota has been reached, please try again later."
	case errors.Is(err, chat.ErrBackend):
		return "Sorry, I ran into a problem handling your message. Please try again later."
	default:
		return "❌ Something went wrong, please try again later."
	}
}

func retrievalMessage(kind player.RetrievalKind) string {
	switch kind {
	case player.RetrievalAccessDenied:
		return "🚫 Can't access that video, it may be age-restricted or region-locked."
	case player.RetrievalRateLimited:
		return "🚫 YouTube is rate limiting us, try again later or use a different link."
	default:
		return "❌ Couldn't load that video."
	}
}

func conflictMessage(err *player.StateConflictError) string {
	switch err.Op {
	case "pause":
		if err.State == player.StatePaused {
			return "Playback is already paused."
		}
		return "Nothing is playing right now."
	case "resume":
		if err.State == player.StatePlaying {
			return "Playback isn't paused."
		}
		return "Nothing is paused right now."
	case "stop":
		return "Nothing to stop."
	default:
		return "Nothing is playing right now."
	}
}
