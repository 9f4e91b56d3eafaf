package practice_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/leadamp/pitchdrill/internal/observe"
	"github.com/leadamp/pitchdrill/internal/practice"
	"github.com/leadamp/pitchdrill/internal/scenario"
	"github.com/leadamp/pitchdrill/internal/scoring"
	"github.com/leadamp/pitchdrill/pkg/provider/llm"
	llmmock "github.com/leadamp/pitchdrill/pkg/provider/llm/mock"
)

const catalogYAML = `
routes:
  cold_call:
    objective: "Book a 15-minute demo"
  cold_dm:
    objective: "Get a reply and book a call"
  door_knock:
    objective: "Get past the door"
industries:
  roofing:
    prospect:
      title: "Owner"
      context: "Runs a small roofing crew."
      name_pool: ["Dale"]
    common_pains: ["lead quality"]
    objections: ["no budget"]
_difficulties:
  easy:
    patience_turns: 12
    objection_rate: 0.2
  impatient:
    patience_turns: 0
    objection_rate: 0.9
`

const reportJSON = `{"score": 60, "section_scores": {"Discovery": 15}, "wins": [], "focus": [], "next_actions": [], "decision_summary": ""}`

func newManager(t *testing.T, provider *llmmock.Provider, opts ...practice.Option) *practice.Manager {
	t.Helper()
	cat, err := scenario.LoadFromReader(strings.NewReader(catalogYAML))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	scorer := scoring.New(provider, "LeadAmp AI")
	return practice.NewManager(cat, provider, scorer, "LeadAmp AI", opts...)
}

func TestStart_SeedsTranscriptAndOpener(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{}
	m := newManager(t, provider)

	opener, err := m.Start(context.Background(), "u1", "c1", "cold_dm", "roofing", "easy")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(opener, "**Dale:**") {
		t.Errorf("opener should carry the prospect prefix: %q", opener)
	}
	if !strings.Contains(opener, "How'd you get my info?") {
		t.Errorf("cold_dm opener mismatch: %q", opener)
	}

	st, err := m.Status("u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Active || st.RouteKey != "cold_dm" || st.Turns != 0 {
		t.Errorf("status: %+v", st)
	}
}

func TestStart_InvalidKeys(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{}
	m := newManager(t, provider)

	_, err := m.Start(context.Background(), "u1", "c1", "carrier_pigeon", "roofing", "easy")
	if !errors.Is(err, scenario.ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if _, err := m.Status("u1"); !errors.Is(err, practice.ErrNoSession) {
		t.Error("failed start must not create a session")
	}
}

func TestHandleMessage_NormalTurn(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "We're pretty slammed. What's this about?"},
	}
	m := newManager(t, provider)
	ctx := context.Background()
	if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
		t.Fatalf("start: %v", err)
	}

	reply, ended, err := m.HandleMessage(ctx, "u1", "c1", "Hi, this is Sam from LeadAmp AI.")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if ended {
		t.Error("normal turn must not end the session")
	}
	if reply != "**Dale:** We're pretty slammed. What's this about?" {
		t.Errorf("reply: %q", reply)
	}

	st, _ := m.Status("u1")
	if st.Turns != 1 {
		t.Errorf("turns: got %d, want 1", st.Turns)
	}

	// The request carries the transcript plus the ephemeral reminder, which
	// must not be persisted.
	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 completion call, got %d", len(calls))
	}
	msgs := calls[0].Req.Messages
	if len(msgs) != 4 { // system, opener, user, reminder
		t.Fatalf("request messages: got %d, want 4", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleSystem || !strings.Contains(last.Content, "tentative booking") {
		t.Errorf("last request message should be the booking reminder: %+v", last)
	}
	if calls[0].Req.Temperature != 0.7 || calls[0].Req.MaxTokens != 240 {
		t.Errorf("chat params: %+v", calls[0].Req)
	}
}

func TestHandleMessage_EndKeyword(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"END", "end", "  End  ", "\teND\n"} {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			provider := &llmmock.Provider{}
			m := newManager(t, provider)
			ctx := context.Background()
			if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
				t.Fatalf("start: %v", err)
			}

			reply, ended, err := m.HandleMessage(ctx, "u1", "c1", raw)
			if err != nil {
				t.Fatalf("handle message: %v", err)
			}
			if !ended {
				t.Error("END must end the session")
			}
			if !strings.Contains(reply, "/end") {
				t.Errorf("reply should point at /end: %q", reply)
			}
			if got := provider.Calls(); len(got) != 0 {
				t.Errorf("END must not call the completion client, got %d calls", len(got))
			}

			st, _ := m.Status("u1")
			if st.Active {
				t.Error("session should be inactive")
			}
			if st.Turns != 0 {
				t.Errorf("END must not count as a turn, got %d", st.Turns)
			}
		})
	}
}

func TestHandleMessage_AfterEndIsIgnored(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{}
	m := newManager(t, provider)
	ctx := context.Background()
	if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := m.HandleMessage(ctx, "u1", "c1", "end"); err != nil {
		t.Fatalf("end: %v", err)
	}

	_, _, err := m.HandleMessage(ctx, "u1", "c1", "hello again")
	if !errors.Is(err, practice.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after END, got %v", err)
	}
	st, _ := m.Status("u1")
	if st.Turns != 0 {
		t.Errorf("turns must not increase after END, got %d", st.Turns)
	}
}

func TestHandleMessage_WrongChannelOrUser(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{}
	m := newManager(t, provider)
	ctx := context.Background()
	if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, _, err := m.HandleMessage(ctx, "u1", "other-channel", "hi"); !errors.Is(err, practice.ErrNoSession) {
		t.Errorf("other channel: expected ErrNoSession, got %v", err)
	}
	if _, _, err := m.HandleMessage(ctx, "u2", "c1", "hi"); !errors.Is(err, practice.ErrNoSession) {
		t.Errorf("other user: expected ErrNoSession, got %v", err)
	}
}

func TestHandleMessage_FillerOnCompletionFailure(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{CompleteErr: errors.New("upstream 500")}
	m := newManager(t, provider)
	ctx := context.Background()
	if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
		t.Fatalf("start: %v", err)
	}

	reply, _, err := m.HandleMessage(ctx, "u1", "c1", "hello?")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if reply != "**Dale:** "+practice.FillerReply {
		t.Errorf("reply: %q", reply)
	}
}

func TestSessionLifecycle_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "Who is this?"},
			{Content: reportJSON},
		},
	}
	m := newManager(t, provider, practice.WithMetrics(metrics))
	ctx := context.Background()
	if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := m.HandleMessage(ctx, "u1", "c1", "Hi Dale"); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if _, err := m.End(ctx, "u1"); err != nil {
		t.Fatalf("end: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	requests := sumDataPoints(t, rm, "pitchdrill.provider.requests")
	if len(requests) != 1 {
		t.Fatalf("request data points = %d, want 1", len(requests))
	}
	for _, want := range []struct{ key, value string }{
		{"provider", "llm"},
		{"kind", "chat"},
		{"status", "ok"},
	} {
		v, ok := requests[0].Attributes.Value(attribute.Key(want.key))
		if !ok || v.AsString() != want.value {
			t.Errorf("request attribute %s = %q, want %q", want.key, v.AsString(), want.value)
		}
	}

	active := sumDataPoints(t, rm, "pitchdrill.active_text_sessions")
	if len(active) != 1 || active[0].Value != 0 {
		t.Errorf("active sessions after end: %+v, want one point at 0", active)
	}

	scored := sumDataPoints(t, rm, "pitchdrill.sessions.scored")
	if len(scored) != 1 || scored[0].Value != 1 {
		t.Fatalf("scored sessions: %+v, want one point at 1", scored)
	}
	if v, ok := scored[0].Attributes.Value("modality"); !ok || v.AsString() != "text" {
		t.Errorf("scored modality = %q, want text", v.AsString())
	}
}

// sumDataPoints returns the data points of an int64 sum metric, failing the
// test if the metric is absent or not a sum.
func sumDataPoints(t *testing.T, rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is %T, not a sum", name, met.Data)
			}
			return sum.DataPoints
		}
	}
	t.Fatalf("metric %q not recorded", name)
	return nil
}

func TestPatiencePolicy(t *testing.T) {
	t.Parallel()

	t.Run("never fires at or below threshold", func(t *testing.T) {
		t.Parallel()
		provider := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "Go on."},
		}
		// rand always below the hangup probability, so the stochastic check
		// would fire on every eligible turn.
		m := newManager(t, provider, practice.WithRandFloat(func() float64 { return 0.0 }))
		ctx := context.Background()
		if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
			t.Fatalf("start: %v", err)
		}

		// patience_turns for "easy" is 12; 12 turns stay within threshold.
		for i := 0; i < 12; i++ {
			reply, _, err := m.HandleMessage(ctx, "u1", "c1", "tell me more")
			if err != nil {
				t.Fatalf("turn %d: %v", i, err)
			}
			if strings.Contains(reply, "I have to jump") {
				t.Fatalf("hangup fired at turn %d, within threshold", i+1)
			}
		}
		if got := len(provider.Calls()); got != 12 {
			t.Errorf("completion calls: got %d, want 12", got)
		}
	})

	t.Run("fires above threshold when the check passes", func(t *testing.T) {
		t.Parallel()
		provider := &llmmock.Provider{}
		m := newManager(t, provider, practice.WithRandFloat(func() float64 { return 0.0 }))
		ctx := context.Background()
		if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "impatient"); err != nil {
			t.Fatalf("start: %v", err)
		}

		// patience_turns is 0, so the first turn is already past it.
		reply, _, err := m.HandleMessage(ctx, "u1", "c1", "quick question")
		if err != nil {
			t.Fatalf("handle message: %v", err)
		}
		if !strings.Contains(reply, "I have to jump") {
			t.Errorf("expected hangup line, got %q", reply)
		}
		if got := len(provider.Calls()); got != 0 {
			t.Errorf("hangup must not call the completion client, got %d calls", got)
		}
	})

	t.Run("does not fire above threshold when the check fails", func(t *testing.T) {
		t.Parallel()
		provider := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "Make it quick."},
		}
		m := newManager(t, provider, practice.WithRandFloat(func() float64 { return 0.99 }))
		ctx := context.Background()
		if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "impatient"); err != nil {
			t.Fatalf("start: %v", err)
		}

		reply, _, err := m.HandleMessage(ctx, "u1", "c1", "quick question")
		if err != nil {
			t.Fatalf("handle message: %v", err)
		}
		if strings.Contains(reply, "I have to jump") {
			t.Errorf("hangup should not fire when the check fails, got %q", reply)
		}
	})
}

func TestEnd_ScoresAndRemoves(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "Who is this?"},
			{Content: reportJSON},
		},
	}
	m := newManager(t, provider)
	ctx := context.Background()
	if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := m.HandleMessage(ctx, "u1", "c1", "Hi Dale"); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	report, err := m.End(ctx, "u1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if report.Score != 60 {
		t.Errorf("score: got %f, want 60", report.Score)
	}

	// Session is removed, not just deactivated.
	if _, err := m.Status("u1"); !errors.Is(err, practice.ErrNoSession) {
		t.Errorf("expected session removed, got %v", err)
	}
	if _, err := m.End(ctx, "u1"); !errors.Is(err, practice.ErrNoSession) {
		t.Errorf("second end: expected ErrNoSession, got %v", err)
	}
}

func TestEnd_NoSession(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{}
	m := newManager(t, provider)

	_, err := m.End(context.Background(), "nobody")
	if !errors.Is(err, practice.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if got := len(provider.Calls()); got != 0 {
		t.Errorf("no scoring call expected, got %d", got)
	}
}

func TestStart_LastWriteWins(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{}
	m := newManager(t, provider)
	ctx := context.Background()

	if _, err := m.Start(ctx, "u1", "c1", "cold_call", "roofing", "easy"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := m.Start(ctx, "u1", "c2", "door_knock", "roofing", "impatient"); err != nil {
		t.Fatalf("second start: %v", err)
	}

	st, err := m.Status("u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.RouteKey != "door_knock" || st.DifficultyKey != "impatient" {
		t.Errorf("old session not replaced: %+v", st)
	}
}
