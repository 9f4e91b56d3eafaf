// Package scoring grades a finished roleplay transcript against a weighted
// rubric using the chat completion provider.
//
// The grader's reply is free-form text that should contain a JSON object.
// Extraction is explicit (markdown-fence aware, first object decoded
// strictly); any failure along the way produces a single degraded zero-score
// report rather than an error. A finished session always yields a report.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leadamp/pitchdrill/internal/observe"
	"github.com/leadamp/pitchdrill/pkg/provider/llm"
)

// Rubric maps section names to their maximum point weight.
type Rubric map[string]int

// SectionOrder lists the rubric sections in report display order.
var SectionOrder = []string{"Discovery", "Value", "Objections", "Close", "Professionalism"}

// DefaultRubric is the fixed five-section rubric summing to 100, used
// identically by the text and voice scoring paths.
var DefaultRubric = Rubric{
	"Discovery":       30,
	"Value":           25,
	"Objections":      25,
	"Close":           15,
	"Professionalism": 5,
}

// Report is the structured score produced once per session termination.
type Report struct {
	Score           float64            `json:"score"`
	SectionScores   map[string]float64 `json:"section_scores"`
	Wins            []string           `json:"wins"`
	Focus           []string           `json:"focus"`
	NextActions     []string           `json:"next_actions"`
	DecisionSummary string             `json:"decision_summary"`
}

// Scorer grades transcripts. Safe for concurrent use.
type Scorer struct {
	provider llm.Provider
	orgName  string
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// Option is a functional option for Scorer.
type Option func(*Scorer)

// WithMetrics sets the metrics instance used to record grading latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scorer) {
		s.metrics = m
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scorer) {
		s.logger = l
	}
}

// New creates a Scorer that grades on behalf of orgName's sales coaching.
func New(provider llm.Provider, orgName string, opts ...Option) *Scorer {
	s := &Scorer{
		provider: provider,
		orgName:  orgName,
		metrics:  observe.DefaultMetrics(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score grades the non-system transcript against rubric. It never fails:
// upstream errors and unparseable grader output both degrade to a zero-score
// report whose focus list names the problem. System messages in transcript
// are skipped.
func (s *Scorer) Score(ctx context.Context, transcript []llm.Message, rubric Rubric) *Report {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ScoringDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	prompt, err := s.buildPrompt(transcript, rubric)
	if err != nil {
		s.logger.Error("scoring: build prompt failed", "error", err)
		return degradedReport("Could not build grading prompt")
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a strict but helpful sales coach."},
			{Role: llm.RoleUser, Content: prompt},
		},
		// Grading must be as deterministic as the model allows.
		Temperature: 0,
	})
	if s.metrics != nil {
		s.metrics.RecordProviderRequest(ctx, "llm", "score", observe.RequestStatus(err))
	}
	if err != nil {
		s.logger.Error("scoring: grading call failed", "error", err)
		return degradedReport("Grading call failed")
	}

	report, err := parseReport(resp.Content)
	if err != nil {
		s.logger.Warn("scoring: could not parse grader response",
			"error", err,
			"response_len", len(resp.Content),
		)
		return degradedReport("Could not parse response")
	}
	return report
}

// buildPrompt renders the grading instruction for the transcript. The rubric
// is embedded as JSON; map marshalling sorts keys, so the prompt is
// deterministic for a given transcript.
func (s *Scorer) buildPrompt(transcript []llm.Message, rubric Rubric) (string, error) {
	rubricJSON, err := json.Marshal(rubric)
	if err != nil {
		return "", fmt.Errorf("scoring: marshal rubric: %w", err)
	}

	var convo strings.Builder
	for _, msg := range transcript {
		if msg.Role == llm.RoleSystem {
			continue
		}
		convo.WriteString(strings.ToUpper(msg.Role))
		convo.WriteString(": ")
		convo.WriteString(msg.Content)
		convo.WriteString("\n")
	}

	return fmt.Sprintf(`You are a sales coach for %s. Score the rep on a 0–100 scale using this rubric: %s.

Transcript:
%s
Return JSON with: {"score": number, "section_scores": {Discovery:number, Value:number, Objections:number, Close:number, Professionalism:number}, "wins": [..], "focus": [..], "next_actions": [..], "decision_summary": "..."}.
`, s.orgName, rubricJSON, convo.String()), nil
}

// parseReport extracts the first JSON object from the grader's free-form
// reply. Markdown code fences are stripped first; decoding is strict from the
// first opening brace.
func parseReport(content string) (*Report, error) {
	raw := stripFences(content)
	idx := strings.IndexByte(raw, '{')
	if idx < 0 {
		return nil, fmt.Errorf("scoring: no JSON object in grader response")
	}

	dec := json.NewDecoder(strings.NewReader(raw[idx:]))
	report := &Report{}
	if err := dec.Decode(report); err != nil {
		return nil, fmt.Errorf("scoring: decode grader JSON: %w", err)
	}
	if report.SectionScores == nil {
		report.SectionScores = map[string]float64{}
	}
	return report, nil
}

// stripFences removes a surrounding markdown code fence (``` or ```json) if
// the grader wrapped its JSON in one.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// degradedReport is the single fallback shape for every scoring failure.
func degradedReport(reason string) *Report {
	return &Report{
		Score:         0,
		SectionScores: map[string]float64{},
		Wins:          []string{},
		Focus:         []string{reason},
		NextActions:   []string{},
	}
}

// Format renders the report as the Discord-flavoured markdown summary sent
// to the rep.
func (r *Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Score:** %.0f/100\n", r.Score)

	b.WriteString("**Section Scores:** ")
	for i, section := range SectionOrder {
		if i > 0 {
			b.WriteString(", ")
		}
		if v, ok := r.SectionScores[section]; ok {
			fmt.Fprintf(&b, "%s %.0f", section, v)
		} else {
			fmt.Fprintf(&b, "%s -", section)
		}
	}
	b.WriteString("\n")

	b.WriteString("**Wins:**\n")
	b.WriteString(bulletList(r.Wins))
	b.WriteString("\n**Focus:**\n")
	b.WriteString(bulletList(r.Focus))

	if len(r.NextActions) > 0 {
		b.WriteString("\n**Next Actions:**\n")
		b.WriteString(bulletList(r.NextActions))
	}
	if r.DecisionSummary != "" {
		fmt.Fprintf(&b, "\n**Decision:** %s", r.DecisionSummary)
	}
	return b.String()
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}
