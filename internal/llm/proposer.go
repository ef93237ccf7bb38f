package llm

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	DefaultTemperature = 1.0
	// Protocol turns only need a number or a keyword back.
	ProtocolMaxTokens   = 100
	EvaluationMaxTokens = 500
)

var ErrEmptyResponse = errors.New("llm: empty response")

// Proposer produces free-form text for a prompt. Output is unreliable in
// format and may be empty.
type Proposer interface {
	Propose(ctx context.Context, prompt string, opts ...CallOption) (string, error)
}

type callOptions struct {
	temperature float32
	maxTokens   int
	system      string
}

type CallOption func(*callOptions)

func WithTemperature(t float32) CallOption {
	return func(o *callOptions) { o.temperature = t }
}

func WithMaxTokens(n int) CallOption {
	return func(o *callOptions) { o.maxTokens = n }
}

// WithSystem prepends a system message to the request.
func WithSystem(content string) CallOption {
	return func(o *callOptions) { o.system = content }
}

// ProposerFunc adapts a plain function to Proposer.
type ProposerFunc func(ctx context.Context, prompt string) (string, error)

func (f ProposerFunc) Propose(ctx context.Context, prompt string, _ ...CallOption) (string, error) {
	return f(ctx, prompt)
}

// ChatProposer issues one Generate call per prompt. No retries.
type ChatProposer struct {
	model   model.BaseChatModel
	timeout time.Duration
	handler callbacks.Handler
}

type ProposerOption func(*ChatProposer)

func WithTimeout(d time.Duration) ProposerOption {
	return func(p *ChatProposer) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithHandler(h callbacks.Handler) ProposerOption {
	return func(p *ChatProposer) { p.handler = h }
}

func NewChatProposer(cm model.BaseChatModel, opts ...ProposerOption) *ChatProposer {
	p := &ChatProposer{model: cm, timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Propose returns the trimmed response text. A timeout is reported like any
// other call failure; callers substitute their fallback value.
func (p *ChatProposer) Propose(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	o := callOptions{temperature: DefaultTemperature, maxTokens: ProtocolMaxTokens}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.handler != nil {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      "proposer",
			Type:      "ChatProposer",
			Component: components.ComponentOfChatModel,
		}, p.handler)
	}

	msgs := make([]*schema.Message, 0, 2)
	if o.system != "" {
		msgs = append(msgs, schema.SystemMessage(o.system))
	}
	msgs = append(msgs, schema.UserMessage(prompt))

	start := time.Now()
	resp, err := p.model.Generate(ctx, msgs,
		model.WithTemperature(o.temperature),
		model.WithMaxTokens(o.maxTokens),
	)
	if err != nil {
		log.Printf("[Proposer] call failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Content)
	log.Printf("[Proposer] response (%s): %q", time.Since(start).Round(time.Millisecond), text)
	return text, nil
}
