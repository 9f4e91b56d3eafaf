// Package config provides the configuration schema, loader, and provider
// registry for the PitchDrill sales training bot.
package config

// LogLevel controls log verbosity for the PitchDrill server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DefaultOrgName is used when org_name is not set in the configuration.
const DefaultOrgName = "LeadAmp AI"

// Config is the root configuration structure for PitchDrill.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Providers ProvidersConfig `yaml:"providers"`

	// OrgName is the company the trainee represents in every roleplay.
	// Defaults to [DefaultOrgName] when empty.
	OrgName string `yaml:"org_name"`

	// ScenariosPath is the path to the scenario catalog YAML file.
	ScenariosPath string `yaml:"scenarios_path"`

	// HistoryPath, when set, enables an append-only JSON-lines log of
	// finished sessions at the given path.
	HistoryPath string `yaml:"history_path"`

	// LLMFallbacks lists backup completion providers tried in order when the
	// primary LLM fails or its circuit is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ServerConfig holds logging and observability settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus metrics endpoint listens
	// on (e.g., ":9090"). When empty, no metrics server is started.
	MetricsAddr string `yaml:"metrics_addr"`
}

// DiscordConfig holds the gateway credentials and scoping for the bot.
type DiscordConfig struct {
	// Token is the Discord bot token. Required.
	Token string `yaml:"token"`

	// GuildID scopes slash command registration to a single guild. When
	// empty, commands are registered globally (slower to propagate).
	GuildID string `yaml:"guild_id"`

	// ReportChannelID, when set, receives a copy of every scorecard posted
	// at the end of a session. Useful for team leads reviewing reps.
	ReportChannelID string `yaml:"report_channel_id"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS TTSEntry      `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// TTSEntry extends [ProviderEntry] with the voice used for the prospect.
type TTSEntry struct {
	ProviderEntry `yaml:",inline"`

	// VoiceID is the provider-specific voice identifier (an ElevenLabs voice
	// ID or an OpenAI voice name such as "alloy"). Empty selects the
	// provider's default voice.
	VoiceID string `yaml:"voice_id"`

	// VoiceName is a human-readable label for the voice, used only in logs.
	VoiceName string `yaml:"voice_name"`
}
