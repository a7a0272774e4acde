package agent

import (
	"context"
	"errors"
	"os"
	"sync"

	einoclaude "github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/cadenzalabs/ensemble/internal/piece"
)

// defaultClaudeModel is used when a Spec/Movement does not override the
// model explicitly.
const defaultClaudeModel = "claude-3-5-sonnet-20241022"

// ErrStaleSession is returned by ClaudeProvider.Call when the supplied
// session id no longer has a cached turn history, triggering the
// executor's one-shot retry.
var ErrStaleSession = piece.ErrStaleSession

// turnHistory is the cached message history for one session id.
type turnHistory struct {
	messages []*schema.Message
}

// ClaudeProvider wraps cloudwego/eino-ext's Claude chat model. Since the
// underlying chat model is stateless per call, session continuity is
// emulated at this layer: the provider concatenates a cached session's
// prior turns (keyed by the supplied session id) into the message list
// before calling, and mints a new opaque session id when none is supplied.
type ClaudeProvider struct {
	chatModel model.BaseChatModel

	mu       sync.Mutex
	sessions map[string]*turnHistory
}

// NewClaudeProvider builds a ClaudeProvider bound to spec's model and
// credentials.
func NewClaudeProvider(spec Spec) (*ClaudeProvider, error) {
	m := spec.Model
	if m == "" {
		m = defaultClaudeModel
	}

	cfg := &einoclaude.Config{
		Model: m,
	}
	if spec.BaseURL != "" {
		cfg.BaseURL = &spec.BaseURL
	}
	cfg.APIKey = apiKeyFromEnv(spec.APIKeyEnv)

	chatModel, err := einoclaude.NewChatModel(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	return &ClaudeProvider{chatModel: chatModel, sessions: make(map[string]*turnHistory)}, nil
}

// Call implements piece.Agent.
func (p *ClaudeProvider) Call(ctx context.Context, prompt string, opts piece.CallOptions) (piece.CallResult, error) {
	messages, history, err := p.resolveHistory(opts.SessionID)
	if err != nil {
		return piece.CallResult{}, err
	}

	if opts.SystemPrompt != "" && len(messages) == 0 {
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

	reply := schema.AssistantMessage(content, nil)
	history.messages = append(messages, reply)

	p.mu.Lock()
	p.sessions[sessionID] = history
	p.mu.Unlock()

	return piece.CallResult{
		Content:   content,
		Status:    piece.StatusDone,
		SessionID: sessionID,
	}, nil
}

func (p *ClaudeProvider) streamCall(ctx context.Context, messages []*schema.Message, opts piece.CallOptions) (string, error) {
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

// resolveHistory returns the cached message slice and history record for
// sessionID. An explicitly-cleared session id (one that was dropped from
// the cache but is non-empty) signals staleness.
func (p *ClaudeProvider) resolveHistory(sessionID string) ([]*schema.Message, *turnHistory, error) {
	if sessionID == "" {
		return nil, &turnHistory{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.sessions[sessionID]
	if !ok {
		return nil, nil, errors.Join(ErrStaleSession, errors.New("claude: session "+sessionID+" not found"))
	}
	messages := make([]*schema.Message, len(h.messages))
	copy(messages, h.messages)
	return messages, &turnHistory{}, nil
}

func apiKeyFromEnv(envVar string) string {
	if envVar == "" {
		envVar = "ANTHROPIC_API_KEY"
	}
	return os.Getenv(envVar)
}
