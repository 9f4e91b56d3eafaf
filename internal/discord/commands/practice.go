// Package commands implements the PitchDrill slash command handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/leadamp/pitchdrill/internal/discord"
	"github.com/leadamp/pitchdrill/internal/history"
	"github.com/leadamp/pitchdrill/internal/practice"
	"github.com/leadamp/pitchdrill/internal/scenario"
	"github.com/leadamp/pitchdrill/internal/voice"
)

// invalidOptions is the reply for unresolvable route/industry/difficulty keys.
const invalidOptions = "Invalid options."

// PracticeCommands holds the dependencies for the text roleplay commands:
// /practice, /end and /status.
type PracticeCommands struct {
	manager  *practice.Manager
	voiceMgr *voice.Manager
	catalog  *scenario.Catalog
	history  *history.Store

	// reportChannelID, when set, receives a copy of every scorecard.
	reportChannelID string
}

// NewPracticeCommands creates a PracticeCommands and registers its handlers
// with the bot's router. history may be nil to disable the session log.
func NewPracticeCommands(bot *discord.Bot, manager *practice.Manager, voiceMgr *voice.Manager, catalog *scenario.Catalog, hist *history.Store, reportChannelID string) *PracticeCommands {
	pc := &PracticeCommands{
		manager:         manager,
		voiceMgr:        voiceMgr,
		catalog:         catalog,
		history:         hist,
		reportChannelID: reportChannelID,
	}
	pc.Register(bot.Router())
	return pc
}

// Register registers the text roleplay commands with the router.
func (pc *PracticeCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("practice", pc.practiceDefinition(), pc.handlePractice)
	router.RegisterCommand("end", &discordgo.ApplicationCommand{
		Name:        "end",
		Description: "End your practice session and get your scorecard",
	}, pc.handleEnd)
	router.RegisterCommand("status", &discordgo.ApplicationCommand{
		Name:        "status",
		Description: "Show your active practice session",
	}, pc.handleStatus)
}

// practiceDefinition returns the /practice command definition, with option
// choices drawn from the loaded scenario catalog.
func (pc *PracticeCommands) practiceDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "practice",
		Description: "Start a text roleplay against a scripted prospect",
		Options:     scenarioOptions(pc.catalog),
	}
}

// scenarioOptions builds the shared route/industry/difficulty options.
func scenarioOptions(catalog *scenario.Catalog) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "route",
			Description: "Sales approach",
			Required:    true,
			Choices:     keyChoices(catalog.RouteKeys()),
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "industry",
			Description: "Prospect industry",
			Required:    true,
			Choices:     keyChoices(catalog.IndustryKeys()),
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "difficulty",
			Description: "Difficulty tier",
			Required:    true,
			Choices:     keyChoices(catalog.DifficultyKeys()),
		},
	}
}

// keyChoices turns catalog keys into option choices.
func keyChoices(keys []string) []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(keys))
	for _, k := range keys {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: k, Value: k})
	}
	return choices
}

// handlePractice handles /practice.
func (pc *PracticeCommands) handlePractice(s *discordgo.Session, i *discordgo.InteractionCreate) {
	vals := optionMap(i)
	route := stringOption(vals, "route")
	industry := stringOption(vals, "industry")
	difficulty := stringOption(vals, "difficulty")

	opener, err := pc.manager.Start(context.Background(), interactionUserID(i), i.ChannelID, route, industry, difficulty)
	if err != nil {
		if errors.Is(err, scenario.ErrUnknownKey) {
			discord.RespondEphemeral(s, i, invalidOptions)
			return
		}
		discord.RespondError(s, i, err)
		return
	}
	discord.Respond(s, i, opener)
}

// handleEnd handles /end. Grading takes a model round-trip, so the reply is
// deferred.
func (pc *PracticeCommands) handleEnd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.DeferReply(s, i)

	userID := interactionUserID(i)
	st, stErr := pc.manager.Status(userID)
	report, err := pc.manager.End(context.Background(), userID)
	if err != nil {
		if errors.Is(err, practice.ErrNoSession) {
			discord.FollowUp(s, i, "No active session.")
			return
		}
		discord.FollowUp(s, i, fmt.Sprintf("Error: %v", err))
		return
	}

	formatted := report.Format()
	discord.FollowUp(s, i, formatted)
	pc.mirrorReport(s, userID, formatted)
	if stErr == nil {
		recordHistory(pc.history, history.Entry{
			UserID:        userID,
			Modality:      "text",
			RouteKey:      st.RouteKey,
			IndustryKey:   st.IndustryKey,
			DifficultyKey: st.DifficultyKey,
			Turns:         st.Turns,
			Score:         report.Score,
			SectionScores: report.SectionScores,
		})
	}
}

// recordHistory appends a finished session to the scorecard log, if one is
// configured. Failures never reach the user.
func recordHistory(store *history.Store, e history.Entry) {
	if store == nil {
		return
	}
	if err := store.Append(e); err != nil {
		slog.Warn("discord: failed to record session history", "user_id", e.UserID, "err", err)
	}
}

// handleStatus handles /status, covering both modalities.
func (pc *PracticeCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	if st, err := pc.manager.Status(userID); err == nil {
		discord.RespondEphemeral(s, i, formatStatus("Text", st.Active, st.RouteKey, st.IndustryKey, st.DifficultyKey, st.ProspectName, st.Turns))
		return
	}
	if pc.voiceMgr != nil {
		if st, err := pc.voiceMgr.Status(userID); err == nil {
			discord.RespondEphemeral(s, i, formatStatus("Voice", st.Active, st.RouteKey, st.IndustryKey, st.DifficultyKey, st.ProspectName, st.Turns))
			return
		}
	}
	discord.RespondEphemeral(s, i, "No active session.")
}

func formatStatus(modality string, active bool, route, industry, difficulty, prospect string, turns int) string {
	state := "active"
	if !active {
		state = "ended — run the end command to get your scorecard"
	}
	return fmt.Sprintf(
		"**%s session** (%s)\nProspect: %s\nRoute: `%s` · Industry: `%s` · Difficulty: `%s`\nTurns: %d",
		modality, state, prospect, route, industry, difficulty, turns,
	)
}

// mirrorReport sends a copy of the scorecard to the configured reporting
// channel, if any.
func (pc *PracticeCommands) mirrorReport(s *discordgo.Session, userID, formatted string) {
	if pc.reportChannelID == "" {
		return
	}
	msg := fmt.Sprintf("Scorecard for <@%s>:\n%s", userID, formatted)
	if _, err := s.ChannelMessageSend(pc.reportChannelID, msg); err != nil {
		slog.Warn("discord: failed to mirror scorecard", "channel_id", pc.reportChannelID, "err", err)
	}
}

// optionMap indexes an interaction's options by name.
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	vals := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		vals[o.Name] = o
	}
	return vals
}

// stringOption returns the named option's string value, or "" if absent.
func stringOption(vals map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	o, ok := vals[name]
	if !ok {
		return ""
	}
	return o.StringValue()
}

// interactionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
