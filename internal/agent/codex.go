package agent

import (
	"context"
	"errors"
	"os"
	"sync"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/cadenzalabs/ensemble/internal/piece"
)

// defaultCodexModel models codex as an OpenAI-compatible coding-agent
// backend, per SPEC_FULL §4.9.
const defaultCodexModel = "gpt-4.1"

// CodexProvider wraps cloudwego/eino-ext's OpenAI chat model. Structurally
// identical to ClaudeProvider: session continuity is emulated the same
// way, at this layer, since the underlying chat model call is stateless.
type CodexProvider struct {
	chatModel model.BaseChatModel

	mu       sync.Mutex
	sessions map[string][]*schema.Message
}

// NewCodexProvider builds a CodexProvider bound to spec's model and
// credentials.
func NewCodexProvider(spec Spec) (*CodexProvider, error) {
	m := spec.Model
	if m == "" {
		m = defaultCodexModel
	}

	cfg := &einoopenai.ChatModelConfig{
		Model:  m,
		APIKey: apiKeyFromEnv(orDefault(spec.APIKeyEnv, "OPENAI_API_KEY")),
	}
	if spec.BaseURL != "" {
		cfg.BaseURL = spec.BaseURL
	}

	chatModel, err := einoopenai.NewChatModel(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	return &CodexProvider{chatModel: chatModel, sessions: make(map[string][]*schema.Message)}, nil
}

// Call implements piece.Agent.
func (p *CodexProvider) Call(ctx context.Context, prompt string, opts piece.CallOptions) (piece.CallResult, error) {
	var messages []*schema.Message

	if opts.SessionID != "" {
		p.mu.Lock()
		cached, ok := p.sessions[opts.SessionID]
		p.mu.Unlock()
		if !ok {
			return piece.CallResult{}, errors.Join(ErrStaleSession, errors.New("codex: session "+opts.SessionID+" not found"))
		}
		messages = append(messages, cached...)
	} else if opts.SystemPrompt != "" {
		messages = append(messages, schema.SystemMessage(opts.SystemPrompt))
	}

	messages = append(messages, schema.UserMessage(prompt))

	var (
		content string
		callErr error
	)
	if opts.OnStream != nil {
		content, callErr = p.streamCall(ctx, messages, opts)
	} else {
		out, genErr := p.chatModel.Generate(ctx, messages)
		callErr = genErr
		if genErr == nil {
			content = out.Content
		}
	}
	if callErr != nil {
		return piece.CallResult{}, callErr
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	p.mu.Lock()
	p.sessions[sessionID] = append(messages, schema.AssistantMessage(content, nil))
	p.mu.Unlock()

	return piece.CallResult{
		Content:   content,
		Status:    piece.StatusDone,
		SessionID: sessionID,
	}, nil
}

func (p *CodexProvider) streamCall(ctx context.Context, messages []*schema.Message, opts piece.CallOptions) (string, error) {
	stream, err := p.chatModel.Stream(ctx, messages)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full string
	for {
		chunk, recvErr := stream.Recv()
		if recvErr != nil {
			break
		}
		full += chunk.Content
		opts.OnStream(chunk.Content)
	}
	return full, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
