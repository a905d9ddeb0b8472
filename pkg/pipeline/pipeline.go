// Package pipeline implements the moderation pipeline: the decision
// sequence from "an inbound message arrived" to "an outbound reply is safe
// to send". It validates input against the safety filter, builds the
// backend request, dispatches it on a bounded worker pool, validates the
// output and keeps per-conversation history consistent across failures.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/modgate/modgate/pkg/archive"
	"github.com/modgate/modgate/pkg/bus"
	"github.com/modgate/modgate/pkg/config"
	"github.com/modgate/modgate/pkg/format"
	"github.com/modgate/modgate/pkg/history"
	"github.com/modgate/modgate/pkg/logger"
	"github.com/modgate/modgate/pkg/providers"
	"github.com/modgate/modgate/pkg/safety"
)

// Reaction markers attached to the triggering message on warning and error
// outcomes.
const (
	ReactionWarning = "⚠"
	ReactionError   = "❌"
)

// Fixed user-visible replies.
const (
	refusalReply = "Discussing this topic is not allowed by the community rules."
	blockedReply = "I can't answer that question (the content is not allowed)."
	emptyReply   = "I received an empty reply from the backend. Please try rephrasing your question."
)

const retryBackoffBase = 500 * time.Millisecond

var kindMessages = map[providers.FailureKind]string{
	providers.KindAuth:           "The relay's backend credentials were rejected.",
	providers.KindRateLimited:    "The backend is rate limiting requests. Please try again in a moment.",
	providers.KindServer:         "The backend returned an error while processing the request.",
	providers.KindTimeout:        "The backend took too long to answer. Please try again.",
	providers.KindMalformed:      "The backend returned a response I could not understand.",
	providers.KindPolicyRejected: "The backend refused to answer this request.",
}

// Archiver is the persistence-of-record collaborator. A nil Archiver
// disables archiving.
type Archiver interface {
	Insert(ctx context.Context, rec archive.Record) bool
}

// Pipeline orchestrates one moderation run per inbound message. It holds no
// per-message state between runs; everything durable lives in the history
// store.
type Pipeline struct {
	provider  providers.Provider
	msgBus    *bus.MessageBus
	history   *history.Store
	filter    *safety.Filter
	formatter *format.Formatter
	archiver  Archiver

	model    string
	sampling config.ProviderConfig

	timeout    time.Duration
	maxRetries int
	workers    chan struct{}

	wg sync.WaitGroup
}

func New(
	cfg *config.Config,
	provider providers.Provider,
	msgBus *bus.MessageBus,
	store *history.Store,
	filter *safety.Filter,
	archiver Archiver,
) *Pipeline {
	return &Pipeline{
		provider:   provider,
		msgBus:     msgBus,
		history:    store,
		filter:     filter,
		formatter:  format.NewFormatter(cfg.Moderation.MaxResponseLength),
		archiver:   archiver,
		model:      cfg.Provider.Model,
		sampling:   cfg.Provider,
		timeout:    cfg.RequestTimeout(),
		maxRetries: cfg.Moderation.MaxRetries,
		workers:    make(chan struct{}, cfg.Moderation.PoolSize),
	}
}

// Run consumes inbound messages until ctx is canceled or the bus closes.
// Each accepted message is handled on the worker pool; pool exhaustion
// delays intake but never rejects a message.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		msg, ok := p.msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if msg.SenderIsBot || !msg.MentionsBot {
			// Channels pre-filter; this is the backstop.
			continue
		}

		select {
		case p.workers <- struct{}{}:
		case <-ctx.Done():
			return
		}

		p.wg.Add(1)
		go func(msg bus.InboundMessage) {
			defer p.wg.Done()
			defer func() { <-p.workers }()
			p.handle(ctx, msg)
		}(msg)
	}
}

// Stop waits for in-flight runs to finish. Dispatched backend calls are not
// canceled mid-flight; they complete or hit their timeout.
func (p *Pipeline) Stop() {
	p.wg.Wait()
}

func (p *Pipeline) handle(ctx context.Context, msg bus.InboundMessage) {
	p.emitTyping(ctx, msg)

	userText := format.StripReasoning(msg.Content)
	logger.InfoCF("pipeline", "processing mention", map[string]any{
		"channel":      msg.Channel,
		"conversation": msg.ChatID,
		"sender":       msg.SenderID,
	})

	p.archiveRecord(ctx, msg.ChatID, msg.SenderID, userText, false)

	if p.filter.Blocked(userText) {
		p.emitReply(ctx, msg, refusalReply)
		return
	}

	imageURL := firstImageAttachment(msg.Attachments)

	p.history.Lock(msg.ChatID)
	defer p.history.Unlock(msg.ChatID)

	var req providers.CompletionRequest
	appended := false
	if imageURL != "" {
		// Image turns are never persisted; the policy travels inline as a
		// single synthetic user turn.
		req = p.buildVisionRequest(userText, imageURL)
	} else {
		p.history.Append(msg.ChatID, history.RoleUser, userText)
		appended = true
		req = p.buildTextRequest(msg.ChatID)
	}

	raw, err := p.dispatch(ctx, req)
	if err != nil {
		p.rollback(msg.ChatID, appended)
		kind := providers.KindOf(err)
		logger.ErrorCF("pipeline", "backend call failed", map[string]any{
			"kind":         string(kind),
			"conversation": msg.ChatID,
			"error":        err.Error(),
		})
		p.emitReaction(ctx, msg, ReactionError)
		p.emitReply(ctx, msg, kindMessages[kind])
		return
	}

	out := format.StripReasoning(raw)
	if p.filter.Blocked(out) {
		p.rollback(msg.ChatID, appended)
		p.emitReply(ctx, msg, blockedReply)
		return
	}

	final := p.formatter.Truncate(out)
	if strings.TrimSpace(strings.TrimSuffix(final, "...")) == "" {
		p.rollback(msg.ChatID, appended)
		p.emitReaction(ctx, msg, ReactionWarning)
		p.emitReply(ctx, msg, emptyReply)
		return
	}

	if appended {
		p.history.Append(msg.ChatID, history.RoleAssistant, final)
	}
	p.emitReply(ctx, msg, final)
	p.archiveRecord(ctx, msg.ChatID, "bot", final, true)
}

// dispatch runs one backend call per attempt with the fixed timeout,
// retrying transient failures (server-class, timeout) with doubling backoff
// up to maxRetries extra attempts. Non-transient failures return at once.
func (p *Pipeline) dispatch(ctx context.Context, req providers.CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		text, err := p.provider.Complete(callCtx, req)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err

		var be *providers.Error
		if !errors.As(err, &be) || !be.Transient() || attempt >= p.maxRetries {
			return "", lastErr
		}

		backoff := retryBackoffBase << attempt
		logger.WarnCF("pipeline", "retrying transient backend failure", map[string]any{
			"attempt": attempt + 1,
			"kind":    string(be.Kind),
			"backoff": backoff.String(),
		})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", lastErr
		}
	}
}

func (p *Pipeline) buildTextRequest(conversationID string) providers.CompletionRequest {
	turns := p.history.Snapshot(conversationID)
	messages := make([]providers.Message, 0, len(turns)+1)
	messages = append(messages, providers.Message{Role: history.RoleSystem, Content: safety.PolicyPrompt})
	for _, t := range turns {
		messages = append(messages, providers.Message{Role: t.Role, Content: t.Content})
	}
	return p.newRequest(messages)
}

func (p *Pipeline) buildVisionRequest(userText, imageURL string) providers.CompletionRequest {
	combined := safety.VisionPreamble
	if userText != "" {
		combined += "\nUser request: " + userText
	}
	return p.newRequest([]providers.Message{{
		Role:     history.RoleUser,
		Content:  combined,
		ImageURL: imageURL,
	}})
}

func (p *Pipeline) newRequest(messages []providers.Message) providers.CompletionRequest {
	return providers.CompletionRequest{
		Model:            p.model,
		Messages:         messages,
		Temperature:      p.sampling.Temperature,
		MaxTokens:        p.sampling.MaxTokens,
		FrequencyPenalty: p.sampling.FrequencyPenalty,
		PresencePenalty:  p.sampling.PresencePenalty,
	}
}

func (p *Pipeline) rollback(conversationID string, appended bool) {
	if appended {
		p.history.PopLast(conversationID)
	}
}

func (p *Pipeline) emitReply(ctx context.Context, msg bus.InboundMessage, content string) {
	err := p.msgBus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		ReplyToID: msg.MessageID,
		Content:   content,
	})
	if err != nil {
		logger.ErrorCF("pipeline", "emitting reply", map[string]any{"error": err.Error()})
	}
}

func (p *Pipeline) emitReaction(ctx context.Context, msg bus.InboundMessage, marker string) {
	err := p.msgBus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		ReplyToID: msg.MessageID,
		Reaction:  marker,
	})
	if err != nil {
		logger.ErrorCF("pipeline", "emitting reaction", map[string]any{"error": err.Error()})
	}
}

func (p *Pipeline) emitTyping(ctx context.Context, msg bus.InboundMessage) {
	err := p.msgBus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Typing:  true,
	})
	if err != nil {
		logger.ErrorCF("pipeline", "emitting typing indicator", map[string]any{"error": err.Error()})
	}
}

func (p *Pipeline) archiveRecord(ctx context.Context, conversationID, authorID, content string, isBot bool) {
	if p.archiver == nil {
		return
	}
	if !p.archiver.Insert(ctx, archive.Record{
		ConversationID: conversationID,
		AuthorID:       authorID,
		Content:        content,
		IsBot:          isBot,
	}) {
		logger.WarnCF("archive", "record not persisted", map[string]any{
			"conversation": conversationID,
			"is_bot":       isBot,
		})
	}
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// firstImageAttachment returns the first attachment that looks like an
// image by extension. Only one image is ever forwarded.
func firstImageAttachment(attachments []string) string {
	for _, att := range attachments {
		lowered := strings.ToLower(att)
		// Strip query parameters from CDN URLs before the extension check.
		if i := strings.IndexByte(lowered, '?'); i >= 0 {
			lowered = lowered[:i]
		}
		for _, ext := range imageExtensions {
			if strings.HasSuffix(lowered, ext) {
				return att
			}
		}
	}
	return ""
}
