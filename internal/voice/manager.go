// Package voice owns live voice roleplay sessions: joining a Discord voice
// channel, capturing the rep's utterances, running each one through the
// STT -> chat completion -> TTS pipeline, and playing the prospect's reply
// back into the channel.
//
// A voice turn never fails the session. Every stage error is logged, counted
// and swallowed; the session stays joined and simply produces no reply for
// that utterance.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/leadamp/pitchdrill/internal/observe"
	"github.com/leadamp/pitchdrill/internal/scenario"
	"github.com/leadamp/pitchdrill/internal/scoring"
	"github.com/leadamp/pitchdrill/pkg/audio"
	"github.com/leadamp/pitchdrill/pkg/provider/llm"
	"github.com/leadamp/pitchdrill/pkg/provider/stt"
	"github.com/leadamp/pitchdrill/pkg/provider/tts"
)

// ErrNoSession is returned when the caller has no live voice session.
var ErrNoSession = errors.New("voice: no session")

const (
	// readyTimeout bounds how long a join waits for the voice connection.
	readyTimeout = 20 * time.Second

	// heardEndNotice is posted to the session's text channel when the rep
	// speaks the END keyword.
	heardEndNotice = "Heard END — type /voice_end to score."

	// fillerLine is spoken when the completion call fails or comes back
	// empty, so the rep is not left talking into silence.
	fillerLine = "Can you repeat that?"

	chatTemperature = 0.7
	chatMaxTokens   = 240
)

// Conn is the slice of a joined Discord voice connection the manager uses.
// It exists so session logic can be exercised without a gateway.
type Conn interface {
	// OpusRecvChan delivers inbound Opus packets from all speakers.
	OpusRecvChan() <-chan *discordgo.Packet

	// OpusSendChan accepts outbound Opus frames for playback.
	OpusSendChan() chan<- []byte

	// Speaking toggles the bot's speaking indicator.
	Speaking(b bool) error

	// AddSpeakingHandler registers fn to be called when a user starts
	// speaking, with their platform user ID and SSRC.
	AddSpeakingHandler(fn func(userID string, ssrc uint32))

	// Disconnect tears the voice connection down.
	Disconnect() error
}

// Joiner joins a guild voice channel and returns the live connection.
// Implementations must respect ctx cancellation while waiting for the
// connection to become ready.
type Joiner func(ctx context.Context, guildID, channelID string) (Conn, error)

// SessionJoiner returns a Joiner backed by a discordgo gateway session.
func SessionJoiner(s *discordgo.Session) Joiner {
	return func(ctx context.Context, guildID, channelID string) (Conn, error) {
		type result struct {
			vc  *discordgo.VoiceConnection
			err error
		}
		ch := make(chan result, 1)
		go func() {
			vc, err := s.ChannelVoiceJoin(guildID, channelID, false, false)
			ch <- result{vc: vc, err: err}
		}()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("voice: join channel %s: %w", channelID, ctx.Err())
		case r := <-ch:
			if r.err != nil {
				return nil, fmt.Errorf("voice: join channel %s: %w", channelID, r.err)
			}
			return &discordConn{vc: r.vc}, nil
		}
	}
}

// discordConn adapts *discordgo.VoiceConnection to [Conn].
type discordConn struct {
	vc *discordgo.VoiceConnection
}

func (c *discordConn) OpusRecvChan() <-chan *discordgo.Packet { return c.vc.OpusRecv }
func (c *discordConn) OpusSendChan() chan<- []byte            { return c.vc.OpusSend }
func (c *discordConn) Speaking(b bool) error                  { return c.vc.Speaking(b) }
func (c *discordConn) Disconnect() error                      { return c.vc.Disconnect() }

func (c *discordConn) AddSpeakingHandler(fn func(userID string, ssrc uint32)) {
	c.vc.AddHandler(func(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
		if vs.Speaking {
			fn(vs.UserID, uint32(vs.SSRC))
		}
	})
}

// Session is one user's live voice roleplay. The session loop is a single
// goroutine, so turns for one session never interleave; mu guards the
// transcript against concurrent access from End and Status.
type Session struct {
	mu sync.Mutex

	UserID         string
	GuildID        string
	TextChannelID  string
	VoiceChannelID string
	Scenario       *scenario.Scenario
	StartedAt      time.Time

	// Transcript entry 0 is the persona system instruction and is excluded
	// from scoring input. Voice sessions carry no scripted opener; the
	// prospect only speaks in response to the rep.
	Transcript []llm.Message
	Turns      int
	Active     bool

	conn     Conn
	recorder *Recorder
	player   *Player
	cancel   context.CancelFunc
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

// ManagerConfig carries the dependencies a [Manager] needs.
type ManagerConfig struct {
	Catalog *scenario.Catalog
	LLM     llm.Provider
	STT     stt.Provider
	TTS     tts.Provider

	// Voice is the synthesis voice used for every prospect persona.
	Voice tts.Voice

	Scorer  *scoring.Scorer
	OrgName string

	// Join establishes voice connections. Usually [SessionJoiner].
	Join Joiner
}

// Manager owns the voice session table. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	catalog *scenario.Catalog
	llm     llm.Provider
	stt     stt.Provider
	tts     tts.Provider
	voice   tts.Voice
	scorer  *scoring.Scorer
	orgName string
	join    Joiner

	endDetector *EndDetector
	metrics     *observe.Metrics
	logger      *slog.Logger

	// notify posts a line to a text channel, used for the END notice.
	notify func(channelID, content string)
}

// Option is a functional option for configuring a [Manager].
type Option func(*Manager)

// WithMetrics sets the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(mgr *Manager) {
		mgr.logger = l
	}
}

// WithNotify sets the callback used to post the END notice to the session's
// text channel. Defaults to a no-op.
func WithNotify(fn func(channelID, content string)) Option {
	return func(mgr *Manager) {
		mgr.notify = fn
	}
}

// NewManager creates a voice session manager.
func NewManager(cfg ManagerConfig, opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		catalog:     cfg.Catalog,
		llm:         cfg.LLM,
		stt:         cfg.STT,
		tts:         cfg.TTS,
		voice:       cfg.Voice,
		scorer:      cfg.Scorer,
		orgName:     cfg.OrgName,
		join:        cfg.Join,
		endDetector: NewEndDetector(),
		metrics:     observe.DefaultMetrics(),
		logger:      slog.Default(),
		notify:      func(string, string) {},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start resolves the scenario, joins the voice channel and begins capturing
// the caller's audio. The join waits at most 20 seconds for the connection
// to become ready; on any failure no session is created. Returns the
// resolved scenario so the caller can announce the prospect.
func (m *Manager) Start(ctx context.Context, userID, guildID, textChannelID, voiceChannelID, routeKey, industryKey, difficultyKey string) (*scenario.Scenario, error) {
	sc, err := m.catalog.Resolve(routeKey, industryKey, difficultyKey)
	if err != nil {
		return nil, err
	}

	joinCtx, cancelJoin := context.WithTimeout(ctx, readyTimeout)
	defer cancelJoin()
	conn, err := m.join(joinCtx, guildID, voiceChannelID)
	if err != nil {
		return nil, err
	}

	recorder, err := NewRecorder(WithRecorderLogger(m.logger))
	if err != nil {
		_ = conn.Disconnect()
		return nil, err
	}
	player, err := NewPlayer(conn.OpusSendChan(), conn.Speaking, m.logger)
	if err != nil {
		_ = conn.Disconnect()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		UserID:         userID,
		GuildID:        guildID,
		TextChannelID:  textChannelID,
		VoiceChannelID: voiceChannelID,
		Scenario:       sc,
		StartedAt:      time.Now(),
		Transcript: []llm.Message{
			{Role: llm.RoleSystem, Content: scenario.SystemPrompt(m.orgName, sc)},
		},
		Active:   true,
		conn:     conn,
		recorder: recorder,
		player:   player,
		cancel:   cancel,
	}

	// Only the initiating user's audio stream is captured; everyone else in
	// the channel is ignored.
	conn.AddSpeakingHandler(func(uid string, ssrc uint32) {
		if uid == userID {
			recorder.SetUserSSRC(ssrc)
		}
	})

	m.mu.Lock()
	prev := m.sessions[userID]
	m.sessions[userID] = sess
	m.mu.Unlock()

	if prev != nil {
		m.teardown(ctx, prev)
	}
	if m.metrics != nil {
		m.metrics.ActiveVoiceSessions.Add(ctx, 1)
	}

	utterances := make(chan []byte)
	go recorder.Run(runCtx, conn.OpusRecvChan(), utterances)
	go m.loop(runCtx, sess, utterances)

	m.logger.Info("voice session started",
		"user_id", userID,
		"voice_channel_id", voiceChannelID,
		"route", routeKey,
		"industry", industryKey,
		"difficulty", difficultyKey,
		"prospect", sc.ProspectName,
	)
	return sc, nil
}

// loop drains finished utterances until the session context is cancelled.
func (m *Manager) loop(ctx context.Context, sess *Session, utterances <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case pcm, ok := <-utterances:
			if !ok {
				return
			}
			m.handleUtterance(ctx, sess, pcm)
		}
	}
}

// handleUtterance runs one audio turn: transcribe, complete, synthesize,
// play. Stage failures are logged and swallowed; the turn just produces no
// reply. A turn that races session teardown no-ops.
func (m *Manager) handleUtterance(ctx context.Context, sess *Session, pcm []byte) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.Active {
		return
	}

	wav := audio.EncodeWAV(pcm, audio.DiscordSampleRate, audio.DiscordChannels)

	start := time.Now()
	text, err := m.stt.Transcribe(ctx, wav)
	if m.metrics != nil {
		m.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		m.metrics.RecordProviderRequest(ctx, "stt", "transcribe", observe.RequestStatus(err))
	}
	if err != nil {
		m.recordTurnError(ctx, "stt", err)
		return
	}
	if text == "" {
		return
	}

	m.logger.Debug("utterance transcribed",
		"user_id", sess.UserID,
		"duration_ms", audio.DurationMs(pcm, audio.DiscordSampleRate, audio.DiscordChannels),
		"text", text,
	)

	if m.endDetector.Detect(text) {
		m.notify(sess.TextChannelID, heardEndNotice)
		return
	}

	sess.Transcript = append(sess.Transcript, llm.Message{Role: llm.RoleUser, Content: text})
	sess.Turns++

	reply := m.completeTurn(ctx, sess)
	sess.Transcript = append(sess.Transcript, llm.Message{Role: llm.RoleAssistant, Content: reply})

	m.speak(ctx, sess, reply)
}

// completeTurn requests the prospect's next line. Callers must hold the
// session lock. Falls back to the filler line on failure or empty output.
func (m *Manager) completeTurn(ctx context.Context, sess *Session) string {
	start := time.Now()
	resp, err := m.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    sess.Transcript,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if m.metrics != nil {
		m.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		m.metrics.RecordProviderRequest(ctx, "llm", "chat", observe.RequestStatus(err))
	}
	if err != nil {
		m.recordTurnError(ctx, "llm", err)
		return fillerLine
	}
	if resp.Content == "" {
		return fillerLine
	}
	return resp.Content
}

// speak synthesizes line and plays it on the session's voice connection.
// Callers must hold the session lock; playback of one reply therefore
// finishes before the next utterance is processed.
func (m *Manager) speak(ctx context.Context, sess *Session, line string) {
	start := time.Now()
	pcm, err := m.tts.Synthesize(ctx, line, m.voice)
	if m.metrics != nil {
		m.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
		m.metrics.RecordProviderRequest(ctx, "tts", "synthesize", observe.RequestStatus(err))
	}
	if err != nil {
		m.recordTurnError(ctx, "tts", err)
		return
	}
	if err := sess.player.Play(ctx, pcm); err != nil {
		m.recordTurnError(ctx, "playback", err)
	}
}

// End tears down the caller's voice session, scores the transcript and
// returns the report. The voice disconnect is best-effort; scoring proceeds
// regardless. Returns [ErrNoSession] when the caller has none.
func (m *Manager) End(ctx context.Context, userID string) (*scoring.Report, error) {
	m.mu.Lock()
	sess := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if sess == nil {
		return nil, ErrNoSession
	}

	m.teardown(ctx, sess)

	sess.mu.Lock()
	transcript := make([]llm.Message, len(sess.Transcript))
	copy(transcript, sess.Transcript)
	turns := sess.Turns
	sess.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordSessionScored(ctx, "voice")
	}
	m.logger.Info("voice session ended", "user_id", userID, "turns", turns)

	return m.scorer.Score(ctx, transcript, scoring.DefaultRubric), nil
}

// teardown stops a session's loops and disconnects its voice connection.
func (m *Manager) teardown(ctx context.Context, sess *Session) {
	sess.cancel()

	sess.mu.Lock()
	wasActive := sess.Active
	sess.Active = false
	sess.mu.Unlock()

	if err := sess.conn.Disconnect(); err != nil {
		m.logger.Warn("voice disconnect error", "user_id", sess.UserID, "error", err)
	}
	if m.metrics != nil && wasActive {
		m.metrics.ActiveVoiceSessions.Add(ctx, -1)
	}
}

// Status reports the caller's voice session state without mutating it.
// Returns [ErrNoSession] when the caller has none.
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

// recordTurnError logs and counts one swallowed voice-turn stage failure.
func (m *Manager) recordTurnError(ctx context.Context, stage string, err error) {
	m.logger.Warn("voice turn error", "stage", stage, "error", err)
	if m.metrics != nil {
		m.metrics.RecordVoiceTurnError(ctx, stage)
	}
}
