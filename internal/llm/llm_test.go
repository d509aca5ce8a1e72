package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"llmarena/internal/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRequest() engine.ProposalRequest {
	return engine.ProposalRequest{
		GameID:     "game_1",
		Model:      "GPT-4o",
		Color:      engine.White,
		FEN:        "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		Legal:      []string{"e4", "d4", "Nf3"},
		MoveNumber: 1,
	}
}

func TestBuildPrompt(t *testing.T) {
	req := sampleRequest()
	req.InCheck = true
	req.Color = engine.Black
	req.History = []string{"e4", "e5", "Qh5"}
	p := BuildPrompt(req)

	for _, want := range []string{
		"playing with the black pieces (You are in check!)",
		"Current position (FEN): " + req.FEN,
		"Game history: e4 e5 Qh5",
		"Your legal moves: e4, d4, Nf3",
		`My move: "Move"`,
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestChatClientOpenAIFormat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  My move: \"e4\"  "}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAI(srv.Client(), "sk-test", "gpt-4o")
	c.BaseURL = srv.URL
	out, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `My move: "e4"` {
		t.Fatalf("out = %q", out)
	}
	if got["model"] != "gpt-4o" || got["temperature"] != 0.1 {
		t.Fatalf("body = %v", got)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", got["messages"])
	}
}

func TestAnthropicFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("headers = %v", r.Header)
		}
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"My move: \"Nf3\""}]}`)
	}))
	defer srv.Close()

	c := NewAnthropic(srv.Client(), "ak", "claude")
	c.BaseURL = srv.URL
	out, err := c.Complete(context.Background(), "prompt")
	if err != nil || out != `My move: "Nf3"` {
		t.Fatalf("Complete = %q, %v", out, err)
	}
}

func TestGeminiFormatAndKeyRedaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-pro:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gk" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"My move: \"d4\""}]}}]}`)
	}))
	defer srv.Close()

	c := NewGemini(srv.Client(), "gk", "gemini-pro")
	c.BaseURL = srv.URL
	out, err := c.Complete(context.Background(), "prompt")
	if err != nil || out != `My move: "d4"` {
		t.Fatalf("Complete = %q, %v", out, err)
	}

	c.BaseURL = "http://127.0.0.1:1"
	c.APIKey = "secret-key"
	_, err = c.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatalf("expected error")
	}
	if strings.Contains(err.Error(), "secret-key") {
		t.Fatalf("error leaks key: %v", err)
	}
}

func TestProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewDeepSeek(srv.Client(), "k", "deepseek-r1")
	c.BaseURL = srv.URL
	_, err := c.Complete(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v", err)
	}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	b := NewBreaker(discardLogger(), "m", BreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute})
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	calls := 0
	fail := func(context.Context) error { calls++; return boom }
	for i := 0; i < 3; i++ {
		if err := b.Execute(context.Background(), fail); !errors.Is(err, boom) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Execute(context.Background(), fail); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, open breaker must not call through", calls)
	}

	now = now.Add(time.Minute)
	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(discardLogger(), "m", BreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})
	now := time.Unix(0, 0)
	b.now = func() time.Time { return now }
	boom := errors.New("boom")

	_ = b.Execute(context.Background(), func(context.Context) error { return boom })
	now = now.Add(2 * time.Second)
	_ = b.Execute(context.Background(), func(context.Context) error { return boom })
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker(discardLogger(), "m", BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreakerErrorsSurviveWrapping(t *testing.T) {
	b := NewBreaker(discardLogger(), "m", BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.Execute(ctx, func(ctx context.Context) error { return errors.Wrap(ctx.Err(), "complete") })
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed after wrapped cancellation", b.State())
	}

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	err := errors.Wrap(b.Execute(context.Background(), func(context.Context) error { return nil }), "propose")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want wrapped ErrCircuitOpen", err)
	}
}

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestModelProposer(t *testing.T) {
	fc := &fakeCompleter{reply: `My move: "e4"`}
	p := &ModelProposer{Model: Model{Name: "X"}, Completer: fc}
	out, err := p.Propose(context.Background(), sampleRequest())
	if err != nil || out != `My move: "e4"` {
		t.Fatalf("Propose = %q, %v", out, err)
	}
	if !strings.Contains(fc.prompt, "Your legal moves: e4, d4, Nf3") {
		t.Fatalf("prompt not built from request")
	}

	fc.err = errors.New("down")
	p.Breaker = NewBreaker(discardLogger(), "X", BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	if _, err := p.Propose(context.Background(), sampleRequest()); err == nil {
		t.Fatalf("expected provider error")
	}
	if _, err := p.Propose(context.Background(), sampleRequest()); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestRandomProposerDeclaresLegalMove(t *testing.T) {
	p := NewRandomProposer(7)
	req := sampleRequest()
	for i := 0; i < 20; i++ {
		out, err := p.Propose(context.Background(), req)
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}
		ok := false
		for _, m := range req.Legal {
			if out == `My move: "`+m+`"` {
				ok = true
			}
		}
		if !ok {
			t.Fatalf("unexpected proposal %q", out)
		}
	}
}

func TestRegistryActivation(t *testing.T) {
	r := NewRegistry(discardLogger(), Keys{OpenAI: "sk"}, RegistryOptions{RandomSeed: 1})

	if _, err := r.Proposer("GPT-4o"); err != nil {
		t.Fatalf("GPT-4o: %v", err)
	}
	if _, err := r.Proposer("Claude-3.5-Sonnet"); !errors.Is(err, ErrInactiveModel) {
		t.Fatalf("err = %v, want ErrInactiveModel", err)
	}
	if _, err := r.Proposer("nope"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("err = %v, want ErrUnknownModel", err)
	}
	if _, err := r.Proposer(RandomModel); err != nil {
		t.Fatalf("Random: %v", err)
	}

	active := r.Active()
	names := map[string]bool{}
	for _, m := range active {
		names[m.Name] = true
	}
	if len(active) != 3 || !names["GPT-4o"] || !names["GPT-4-Turbo"] || !names[RandomModel] {
		t.Fatalf("active = %v", active)
	}

	all := r.Models()
	if all[0].Name != "GPT-4o" || all[0].InitialElo != 1850 {
		t.Fatalf("first model = %+v", all[0])
	}
}

func TestRegistryRoutesToProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"My move: \"Nf3\""}]}`)
	}))
	defer srv.Close()

	r := NewRegistry(discardLogger(), Keys{Anthropic: "ak"}, RegistryOptions{
		HTTP:     srv.Client(),
		BaseURLs: map[string]string{ProviderAnthropic: srv.URL},
	})
	p, err := r.Proposer("Claude-3.5-Sonnet")
	if err != nil {
		t.Fatalf("Proposer: %v", err)
	}
	out, err := p.Propose(context.Background(), sampleRequest())
	if err != nil || out != `My move: "Nf3"` {
		t.Fatalf("Propose = %q, %v", out, err)
	}
}
