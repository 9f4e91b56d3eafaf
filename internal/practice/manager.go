// Package practice implements the text roleplay session lifecycle: one
// active session per user, an append-only transcript, difficulty-driven
// patience behaviour, and end-of-session scoring.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/leadamp/pitchdrill/internal/observe"
	"github.com/leadamp/pitchdrill/internal/scenario"
	"github.com/leadamp/pitchdrill/internal/scoring"
	"github.com/leadamp/pitchdrill/pkg/provider/llm"
)

// ErrNoSession is returned when an operation targets a user without a
// session entry.
var ErrNoSession = errors.New("practice: no session")

const (
	// EndKeyword ends a session when a message equals it, case-insensitively
	// and whitespace-trimmed.
	EndKeyword = "END"

	// FillerReply substitutes for the prospect's turn when the completion
	// call fails; the conversation continues rather than surfacing an error.
	FillerReply = "Can you repeat that?"

	// hangupLine is the fixed reply used when the patience policy
	// short-circuits a turn.
	hangupLine = "Listen, I have to jump. Send me something in writing and we can talk another time."

	// hangupProbability is the per-turn chance of a patience hangup once the
	// difficulty's threshold is exceeded.
	hangupProbability = 0.4

	// bookingReminder is appended to each completion request as an extra
	// system message. It steers the model without being persisted in the
	// transcript.
	bookingReminder = "If the rep clearly proposes a concrete day and time for a demo, treat it as a tentative booking: acknowledge it and wind the conversation down politely. Keep your tone natural and conversational."

	chatTemperature = 0.7
	chatMaxTokens   = 240
)

// Session is one user's active text roleplay. All mutation happens under mu,
// so concurrent events for the same session cannot interleave transcript
// appends.
type Session struct {
	mu sync.Mutex

	UserID    string
	ChannelID string
	Scenario  *scenario.Scenario
	StartedAt time.Time

	// Transcript is append-only; entry 0 is always the persona system
	// instruction and is excluded from scoring input.
	Transcript []llm.Message
	Turns      int
	Active     bool
}

// Status is the read-only snapshot returned by [Manager.Status].
type Status struct {
	Active        bool
	RouteKey      string
	IndustryKey   string
	DifficultyKey string
	ProspectName  string
	Turns         int
}

// Manager owns the text session table. Safe for concurrent use; the table is
// guarded by a mutex and each session serialises its own events.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	catalog  *scenario.Catalog
	provider llm.Provider
	scorer   *scoring.Scorer
	orgName  string

	metrics *observe.Metrics
	logger  *slog.Logger

	// randFloat drives the patience check; overridable in tests.
	randFloat func() float64
}

// Option is a functional option for Manager.
type Option func(*Manager)

// WithMetrics sets the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(mgr *Manager) {
		mgr.logger = l
	}
}

// WithRandFloat overrides the random source for the patience check.
// Intended for tests.
func WithRandFloat(f func() float64) Option {
	return func(mgr *Manager) {
		mgr.randFloat = f
	}
}

// NewManager creates a text session manager.
func NewManager(catalog *scenario.Catalog, provider llm.Provider, scorer *scoring.Scorer, orgName string, opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		catalog:   catalog,
		provider:  provider,
		scorer:    scorer,
		orgName:   orgName,
		metrics:   observe.DefaultMetrics(),
		logger:    slog.Default(),
		randFloat: rand.Float64,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start begins a session for userID in channelID. An existing session for
// the user is discarded (last-write-wins). Returns the prospect's opener
// line, already prefixed for the channel. Invalid keys return an error
// wrapping [scenario.ErrUnknownKey] and leave state unchanged.
func (m *Manager) Start(ctx context.Context, userID, channelID, routeKey, industryKey, difficultyKey string) (string, error) {
	sc, err := m.catalog.Resolve(routeKey, industryKey, difficultyKey)
	if err != nil {
		return "", err
	}

	opener := scenario.Opener(routeKey)
	sess := &Session{
		UserID:    userID,
		ChannelID: channelID,
		Scenario:  sc,
		StartedAt: time.Now(),
		Transcript: []llm.Message{
			{Role: llm.RoleSystem, Content: scenario.SystemPrompt(m.orgName, sc)},
			{Role: llm.RoleAssistant, Content: opener},
		},
		Active: true,
	}

	m.mu.Lock()
	prev := m.sessions[userID]
	m.sessions[userID] = sess
	m.mu.Unlock()

	prevActive := false
	if prev != nil {
		prev.mu.Lock()
		prevActive = prev.Active
		prev.Active = false
		prev.mu.Unlock()
	}
	if m.metrics != nil && !prevActive {
		m.metrics.ActiveTextSessions.Add(ctx, 1)
	}
	m.logger.Info("text session started",
		"user_id", userID,
		"route", routeKey,
		"industry", industryKey,
		"difficulty", difficultyKey,
		"prospect", sc.ProspectName,
	)

	return m.prefixed(sess, opener), nil
}

// HandleMessage processes one inbound message from userID in channelID.
// Returns the reply to emit to the channel and whether the message ended the
// session. Messages outside the session's channel, or without an active
// session, return [ErrNoSession]; callers should ignore those silently.
func (m *Manager) HandleMessage(ctx context.Context, userID, channelID, content string) (reply string, ended bool, err error) {
	m.mu.Lock()
	sess := m.sessions[userID]
	m.mu.Unlock()
	if sess == nil {
		return "", false, ErrNoSession
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.Active || sess.ChannelID != channelID {
		return "", false, ErrNoSession
	}

	if strings.EqualFold(strings.TrimSpace(content), EndKeyword) {
		sess.Active = false
		if m.metrics != nil {
			m.metrics.ActiveTextSessions.Add(ctx, -1)
		}
		m.logger.Info("text session deactivated by END keyword", "user_id", userID, "turns", sess.Turns)
		return "Got it. Run `/end` to get your scorecard.", true, nil
	}

	sess.Transcript = append(sess.Transcript, llm.Message{Role: llm.RoleUser, Content: content})
	sess.Turns++

	// Patience policy: past the difficulty threshold the prospect may hang
	// up instead of burning a completion call.
	if sess.Turns > sess.Scenario.Difficulty.PatienceTurns && m.randFloat() < hangupProbability {
		sess.Transcript = append(sess.Transcript, llm.Message{Role: llm.RoleAssistant, Content: hangupLine})
		if m.metrics != nil {
			m.metrics.PatienceHangups.Add(ctx, 1)
		}
		m.logger.Info("patience hangup", "user_id", userID, "turns", sess.Turns)
		return m.prefixed(sess, hangupLine), false, nil
	}

	reply = m.completeTurn(ctx, sess)
	sess.Transcript = append(sess.Transcript, llm.Message{Role: llm.RoleAssistant, Content: reply})
	return m.prefixed(sess, reply), false, nil
}

// completeTurn calls the completion provider with the transcript plus the
// ephemeral booking reminder. Failures and empty completions degrade to
// [FillerReply].
func (m *Manager) completeTurn(ctx context.Context, sess *Session) string {
	messages := make([]llm.Message, 0, len(sess.Transcript)+1)
	messages = append(messages, sess.Transcript...)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: bookingReminder})

	start := time.Now()
	resp, err := m.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if m.metrics != nil {
		m.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		m.metrics.RecordProviderRequest(ctx, "llm", "chat", observe.RequestStatus(err))
	}
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordProviderError(ctx, "llm", "chat")
		}
		m.logger.Warn("completion failed, substituting filler", "user_id", sess.UserID, "error", err)
		return FillerReply
	}
	if resp.Content == "" {
		return FillerReply
	}
	return resp.Content
}

// End scores userID's session, removes it from the table and returns the
// report. Works on both active and END-deactivated sessions.
func (m *Manager) End(ctx context.Context, userID string) (*scoring.Report, error) {
	m.mu.Lock()
	sess := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if sess == nil {
		return nil, ErrNoSession
	}

	sess.mu.Lock()
	wasActive := sess.Active
	sess.Active = false
	transcript := make([]llm.Message, len(sess.Transcript))
	copy(transcript, sess.Transcript)
	turns := sess.Turns
	sess.mu.Unlock()

	if m.metrics != nil {
		if wasActive {
			m.metrics.ActiveTextSessions.Add(ctx, -1)
		}
		m.metrics.RecordSessionScored(ctx, "text")
	}

	report := m.scorer.Score(ctx, transcript, scoring.DefaultRubric)
	m.logger.Info("text session scored",
		"user_id", userID,
		"turns", turns,
		"score", report.Score,
	)
	return report, nil
}

// Status reports the state of userID's session without mutating it.
func (m *Manager) Status(userID string) (Status, error) {
	m.mu.Lock()
	sess := m.sessions[userID]
	m.mu.Unlock()
	if sess == nil {
		return Status{}, ErrNoSession
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return Status{
		Active:        sess.Active,
		RouteKey:      sess.Scenario.RouteKey,
		IndustryKey:   sess.Scenario.IndustryKey,
		DifficultyKey: sess.Scenario.DifficultyKey,
		ProspectName:  sess.Scenario.ProspectName,
		Turns:         sess.Turns,
	}, nil
}

// prefixed formats a prospect line for the channel. Callers must hold the
// session lock or own the session exclusively.
func (m *Manager) prefixed(sess *Session, line string) string {
	return fmt.Sprintf("**%s:** %s", sess.Scenario.ProspectName, line)
}
