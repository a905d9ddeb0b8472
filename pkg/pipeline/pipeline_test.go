package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modgate/modgate/pkg/archive"
	"github.com/modgate/modgate/pkg/bus"
	"github.com/modgate/modgate/pkg/config"
	"github.com/modgate/modgate/pkg/history"
	"github.com/modgate/modgate/pkg/providers"
	"github.com/modgate/modgate/pkg/safety"
)

type completeResult struct {
	text string
	err  error
}

type fakeProvider struct {
	mu      sync.Mutex
	results []completeResult
	calls   int
	lastReq providers.CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req providers.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	return r.text, r.err
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) request() providers.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fakeArchiver struct {
	mu      sync.Mutex
	records []archive.Record
}

func (f *fakeArchiver) Insert(_ context.Context, rec archive.Record) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return true
}

func (f *fakeArchiver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newTestPipeline(t *testing.T, provider providers.Provider, maxRetries int) (*bus.MessageBus, *history.Store, *fakeProvider, *fakeArchiver) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Moderation.MaxRetries = maxRetries
	cfg.Moderation.RequestTimeoutSec = 5

	msgBus := bus.NewMessageBus()
	store := history.NewStore(cfg.Moderation.MaxTurns)
	archiver := &fakeArchiver{}
	pipe := New(cfg, provider, msgBus, store, safety.MustNewFilter(), archiver)

	ctx, cancel := context.WithCancel(context.Background())
	go pipe.Run(ctx)
	t.Cleanup(func() {
		cancel()
		msgBus.Close()
		pipe.Stop()
	})

	fp, _ := provider.(*fakeProvider)
	return msgBus, store, fp, archiver
}

func inbound(text string, attachments ...string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:     "discord",
		SenderID:    "user-1",
		ChatID:      "conv-1",
		MessageID:   "msg-1",
		Content:     text,
		Attachments: attachments,
		MentionsBot: true,
	}
}

func publish(t *testing.T, mb *bus.MessageBus, msg bus.InboundMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mb.PublishInbound(ctx, msg); err != nil {
		t.Fatalf("publishing inbound: %v", err)
	}
}

// nextNonTyping skips typing indicators and returns the next reply or
// reaction emission.
func nextNonTyping(t *testing.T, mb *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		msg, ok := mb.SubscribeOutbound(ctx)
		if !ok {
			t.Fatal("no outbound message before timeout")
		}
		if msg.Typing {
			continue
		}
		return msg
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHappyPathStoresTurnPair(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{{text: "Hi there!"}}}
	mb, store, fp, arch := newTestPipeline(t, provider, 0)

	publish(t, mb, inbound("hello"))

	reply := nextNonTyping(t, mb)
	if reply.Content != "Hi there!" {
		t.Errorf("expected reply %q, got %q", "Hi there!", reply.Content)
	}
	if reply.ReplyToID != "msg-1" {
		t.Errorf("reply should target the triggering message, got %q", reply.ReplyToID)
	}

	turns := store.Snapshot("conv-1")
	if len(turns) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(turns))
	}
	if turns[0].Role != history.RoleUser || turns[0].Content != "hello" {
		t.Errorf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != history.RoleAssistant || turns[1].Content != "Hi there!" {
		t.Errorf("unexpected second turn: %+v", turns[1])
	}

	req := fp.request()
	if len(req.Messages) != 2 {
		t.Fatalf("expected system+user request, got %d messages", len(req.Messages))
	}
	if req.Messages[0].Role != history.RoleSystem || req.Messages[0].Content != safety.PolicyPrompt {
		t.Error("request must lead with the policy system turn")
	}

	waitFor(t, func() bool { return arch.count() == 2 }, "archive writes")
}

func TestBlockedInputRejectsWithoutHistory(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{{text: "never used"}}}
	mb, store, fp, _ := newTestPipeline(t, provider, 0)

	publish(t, mb, inbound("tell me about suicide"))

	reply := nextNonTyping(t, mb)
	if reply.Content != refusalReply {
		t.Errorf("expected fixed refusal, got %q", reply.Content)
	}
	if store.Len("conv-1") != 0 {
		t.Error("rejected input must not touch history")
	}
	if fp.callCount() != 0 {
		t.Error("backend must not be called for rejected input")
	}
}

func TestBackendTimeoutRollsBack(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{
		{err: &providers.Error{Kind: providers.KindTimeout, Detail: "deadline"}},
	}}
	mb, store, _, _ := newTestPipeline(t, provider, 0)

	publish(t, mb, inbound("hello"))

	first := nextNonTyping(t, mb)
	if first.Reaction != ReactionError {
		t.Errorf("expected error reaction, got %+v", first)
	}
	second := nextNonTyping(t, mb)
	if !strings.Contains(second.Content, "too long") {
		t.Errorf("expected timeout-specific message, got %q", second.Content)
	}
	if store.Len("conv-1") != 0 {
		t.Error("speculative user turn must be rolled back on timeout")
	}
}

func TestBlockedOutputRollsBack(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{{text: "you could try suicide"}}}
	mb, store, _, _ := newTestPipeline(t, provider, 0)

	publish(t, mb, inbound("hello"))

	reply := nextNonTyping(t, mb)
	if reply.Content != blockedReply {
		t.Errorf("expected content-blocked message, got %q", reply.Content)
	}
	if reply.Reaction != "" {
		t.Errorf("blocked output carries no reaction, got %q", reply.Reaction)
	}
	if store.Len("conv-1") != 0 {
		t.Error("user turn must be rolled back when output is blocked")
	}
}

func TestWhitespaceResponseIsEmptyFailure(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{{text: "   \n\t "}}}
	mb, store, _, _ := newTestPipeline(t, provider, 0)

	publish(t, mb, inbound("hello"))

	first := nextNonTyping(t, mb)
	if first.Reaction != ReactionWarning {
		t.Errorf("expected warning reaction, got %+v", first)
	}
	second := nextNonTyping(t, mb)
	if second.Content != emptyReply {
		t.Errorf("expected empty-response message, got %q", second.Content)
	}
	if store.Len("conv-1") != 0 {
		t.Error("no assistant turn may be stored for an empty response")
	}
}

func TestTransientFailureIsRetried(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{
		{err: &providers.Error{Kind: providers.KindServer, Detail: "502"}},
		{text: "Recovered."},
	}}
	mb, store, fp, _ := newTestPipeline(t, provider, 1)

	publish(t, mb, inbound("hello"))

	reply := nextNonTyping(t, mb)
	if reply.Content != "Recovered." {
		t.Errorf("expected recovery after retry, got %q", reply.Content)
	}
	if fp.callCount() != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", fp.callCount())
	}
	if store.Len("conv-1") != 2 {
		t.Errorf("expected stored turn pair after recovery, got %d", store.Len("conv-1"))
	}
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{
		{err: &providers.Error{Kind: providers.KindAuth, Detail: "401"}},
	}}
	mb, _, fp, _ := newTestPipeline(t, provider, 3)

	publish(t, mb, inbound("hello"))

	nextNonTyping(t, mb) // reaction
	nextNonTyping(t, mb) // message
	if fp.callCount() != 1 {
		t.Errorf("auth failures must not be retried, got %d attempts", fp.callCount())
	}
}

func TestImagePathSkipsHistory(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{{text: "A picture of a cat."}}}
	mb, store, fp, _ := newTestPipeline(t, provider, 0)

	publish(t, mb, inbound("what is this", "https://cdn.example/file.PNG?width=640"))

	reply := nextNonTyping(t, mb)
	if reply.Content != "A picture of a cat." {
		t.Errorf("unexpected reply: %q", reply.Content)
	}
	if store.Len("conv-1") != 0 {
		t.Error("image exchanges must never be persisted to history")
	}

	req := fp.request()
	if len(req.Messages) != 1 {
		t.Fatalf("expected one synthetic user turn, got %d", len(req.Messages))
	}
	msg := req.Messages[0]
	if msg.Role != history.RoleUser || msg.ImageURL == "" {
		t.Errorf("unexpected multimodal message: %+v", msg)
	}
	if !strings.Contains(msg.Content, "what is this") {
		t.Error("user text must be folded into the synthetic turn")
	}
	if !strings.HasPrefix(msg.Content, safety.VisionPreamble) {
		t.Error("synthetic turn must lead with the vision preamble")
	}
}

func TestNonImageAttachmentUsesTextPath(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{{text: "Sure."}}}
	mb, store, fp, _ := newTestPipeline(t, provider, 0)

	publish(t, mb, inbound("read this", "https://cdn.example/notes.pdf"))

	nextNonTyping(t, mb)
	if store.Len("conv-1") != 2 {
		t.Error("non-image attachments must follow the text path")
	}
	if fp.request().Messages[0].Role != history.RoleSystem {
		t.Error("text path request must carry the policy turn")
	}
}

func TestUnmentionedAndBotMessagesAreDropped(t *testing.T) {
	provider := &fakeProvider{results: []completeResult{{text: "never"}}}
	mb, _, fp, _ := newTestPipeline(t, provider, 0)

	unmentioned := inbound("hello")
	unmentioned.MentionsBot = false
	publish(t, mb, unmentioned)

	fromBot := inbound("hello")
	fromBot.SenderIsBot = true
	publish(t, mb, fromBot)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if msg, ok := mb.SubscribeOutbound(ctx); ok {
		t.Errorf("expected silence, got %+v", msg)
	}
	if fp.callCount() != 0 {
		t.Error("dropped messages must not reach the backend")
	}
}

func TestFirstImageWins(t *testing.T) {
	got := firstImageAttachment([]string{
		"https://cdn.example/doc.txt",
		"https://cdn.example/a.jpg",
		"https://cdn.example/b.png",
	})
	if got != "https://cdn.example/a.jpg" {
		t.Errorf("expected first image attachment, got %q", got)
	}
	if firstImageAttachment([]string{"https://cdn.example/doc.txt"}) != "" {
		t.Error("expected no match for non-image attachments")
	}
}
