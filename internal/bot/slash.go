package bot

import (
	"strconv"

	"github.com/bwmarrin/discordgo"
)

func slashCommands() []*discordgo.ApplicationCommand {
	minPosition := 1.0
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Add a YouTube song to the queue",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "url",
				Description: "YouTube link",
				Required:    true,
			}},
		},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "queue", Description: "Show the queue"},
		{
			Name:        "remove",
			Description: "Remove a song from the queue",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "position",
				Description: "Position in the queue list",
				Required:    true,
				MinValue:    &minPosition,
			}},
		},
		{Name: "gacha", Description: "Draw ten emotes"},
		{
			Name:        "chat",
			Description: "Talk to the assistant",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "message",
				Description: "What to say",
				Required:    true,
			}},
		},
		{Name: "reset", Description: "Forget your conversation with the assistant"},
		{Name: "help", Description: "List the commands"},
	}
}

// parseInteraction maps a slash command onto the same Request a prefixed
// message would produce.
func parseInteraction(i *discordgo.InteractionCreate) Request {
	data := i.ApplicationCommandData()
	req := Request{
		Command:   data.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		req.UserID = i.Member.User.ID
	case i.User != nil:
		req.UserID = i.User.ID
	}

	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionString:
			req.Text = opt.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			req.Text = strconv.FormatInt(opt.IntValue(), 10)
		}
	}
	return req
}
