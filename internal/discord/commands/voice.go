package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/leadamp/pitchdrill/internal/discord"
	"github.com/leadamp/pitchdrill/internal/history"
	"github.com/leadamp/pitchdrill/internal/scenario"
	"github.com/leadamp/pitchdrill/internal/voice"
)

// VoiceCommands holds the dependencies for /voice_practice and /voice_end.
type VoiceCommands struct {
	manager *voice.Manager
	catalog *scenario.Catalog
	history *history.Store

	// reportChannelID, when set, receives a copy of every scorecard.
	reportChannelID string
}

// NewVoiceCommands creates a VoiceCommands and registers its handlers with
// the bot's router. history may be nil to disable the session log.
func NewVoiceCommands(bot *discord.Bot, manager *voice.Manager, catalog *scenario.Catalog, hist *history.Store, reportChannelID string) *VoiceCommands {
	vc := &VoiceCommands{
		manager:         manager,
		catalog:         catalog,
		history:         hist,
		reportChannelID: reportChannelID,
	}
	vc.Register(bot.Router())
	return vc
}

// Register registers the voice roleplay commands with the router.
func (vc *VoiceCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("voice_practice", vc.voicePracticeDefinition(), vc.handleVoicePractice)
	router.RegisterCommand("voice_end", &discordgo.ApplicationCommand{
		Name:        "voice_end",
		Description: "End your voice practice session and get your scorecard",
	}, vc.handleVoiceEnd)
}

// voicePracticeDefinition returns the /voice_practice command definition.
func (vc *VoiceCommands) voicePracticeDefinition() *discordgo.ApplicationCommand {
	opts := []*discordgo.ApplicationCommandOption{
		{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "channel",
			Description:  "Voice channel to join",
			Required:     true,
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
		},
	}
	opts = append(opts, scenarioOptions(vc.catalog)...)
	return &discordgo.ApplicationCommand{
		Name:        "voice_practice",
		Description: "Start a spoken roleplay in a voice channel",
		Options:     opts,
	}
}

// handleVoicePractice handles /voice_practice. Joining and becoming ready
// can take a while, so the reply is deferred.
func (vc *VoiceCommands) handleVoicePractice(s *discordgo.Session, i *discordgo.InteractionCreate) {
	vals := optionMap(i)
	channelID := channelOption(vals, "channel")
	route := stringOption(vals, "route")
	industry := stringOption(vals, "industry")
	difficulty := stringOption(vals, "difficulty")

	if channelID == "" || !isVoiceChannel(s, channelID) {
		discord.RespondEphemeral(s, i, "Pick a voice channel.")
		return
	}

	discord.DeferReply(s, i)

	sc, err := vc.manager.Start(context.Background(), interactionUserID(i), i.GuildID, i.ChannelID, channelID, route, industry, difficulty)
	if err != nil {
		if errors.Is(err, scenario.ErrUnknownKey) {
			discord.FollowUp(s, i, invalidOptions)
			return
		}
		slog.Warn("voice practice start failed", "channel_id", channelID, "err", err)
		discord.FollowUp(s, i, fmt.Sprintf("Couldn't join the voice channel: %v", err))
		return
	}

	discord.FollowUp(s, i, fmt.Sprintf(
		"Joined <#%s>. You're speaking with **%s**. Say END when you're done, then run `/voice_end` for your scorecard.",
		channelID, sc.ProspectName,
	))
}

// handleVoiceEnd handles /voice_end.
func (vc *VoiceCommands) handleVoiceEnd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.DeferReply(s, i)

	userID := interactionUserID(i)
	st, stErr := vc.manager.Status(userID)
	report, err := vc.manager.End(context.Background(), userID)
	if err != nil {
		if errors.Is(err, voice.ErrNoSession) {
			discord.FollowUp(s, i, "No active voice session.")
			return
		}
		discord.FollowUp(s, i, fmt.Sprintf("Error: %v", err))
		return
	}

	formatted := report.Format()
	discord.FollowUp(s, i, formatted)
	vc.mirrorReport(s, userID, formatted)
	if stErr == nil {
		recordHistory(vc.history, history.Entry{
			UserID:        userID,
			Modality:      "voice",
			RouteKey:      st.RouteKey,
			IndustryKey:   st.IndustryKey,
			DifficultyKey: st.DifficultyKey,
			Turns:         st.Turns,
			Score:         report.Score,
			SectionScores: report.SectionScores,
		})
	}
}

// mirrorReport sends a copy of the scorecard to the configured reporting
// channel, if any.
func (vc *VoiceCommands) mirrorReport(s *discordgo.Session, userID, formatted string) {
	if vc.reportChannelID == "" {
		return
	}
	msg := fmt.Sprintf("Scorecard for <@%s>:\n%s", userID, formatted)
	if _, err := s.ChannelMessageSend(vc.reportChannelID, msg); err != nil {
		slog.Warn("discord: failed to mirror scorecard", "channel_id", vc.reportChannelID, "err", err)
	}
}

// channelOption returns the named option's channel ID, or "" if absent.
func channelOption(vals map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	o, ok := vals[name]
	if !ok {
		return ""
	}
	ch := o.ChannelValue(nil)
	if ch == nil {
		return ""
	}
	return ch.ID
}

// isVoiceChannel reports whether channelID refers to a guild voice channel.
// When the channel is not cached, the option's own ChannelTypes restriction
// has already filtered the pick and the check passes.
func isVoiceChannel(s *discordgo.Session, channelID string) bool {
	ch, err := s.State.Channel(channelID)
	if err != nil || ch == nil {
		return true
	}
	return ch.Type == discordgo.ChannelTypeGuildVoice
}
