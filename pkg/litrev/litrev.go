// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package litrev is the public entry point of the literature-review
// assistant. Run wires a search tool and a chat model into a two-party
// conversation and returns the conversation as a lazy message sequence.
//
//	seq, run, err := litrev.Run(ctx, "graph neural networks", 3, "llama3")
//	if err != nil {
//		return err
//	}
//	for msg, err := range seq {
//		if err != nil {
//			return err
//		}
//		fmt.Println(msg.Sender, msg.Content)
//	}
//	review := run.Review()
package litrev

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/litrev/internal/conversation"
	"github.com/pdiddy/litrev/internal/model"
	"github.com/pdiddy/litrev/internal/search"
	"github.com/pdiddy/litrev/pkg/types"
)

// Archive persists finished reviews. *archive.Store satisfies it.
type Archive interface {
	Save(ctx context.Context, r types.Review) error
}

type options struct {
	search       types.SearchConfig
	model        types.ModelConfig
	conversation types.ConversationConfig
	log          *zap.Logger
	backend      search.Backend
	chat         model.ChatModel
	archive      Archive
}

// Option configures Run.
type Option func(*options)

// WithSearchConfig replaces the search tool settings.
func WithSearchConfig(cfg types.SearchConfig) Option {
	return func(o *options) { o.search = cfg }
}

// WithModelConfig replaces the chat model settings. A non-empty model
// argument to Run still takes precedence over cfg.Model.
func WithModelConfig(cfg types.ModelConfig) Option {
	return func(o *options) { o.model = cfg }
}

// WithConversationConfig replaces the protocol settings.
func WithConversationConfig(cfg types.ConversationConfig) Option {
	return func(o *options) { o.conversation = cfg }
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSearchBackend uses b instead of the backend named in the search
// config. The tool still validates arguments and rate-limits calls.
func WithSearchBackend(b search.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithChatModel uses m instead of an OpenAI-compatible client. The caller
// keeps ownership of m.
func WithChatModel(m model.ChatModel) Option {
	return func(o *options) { o.chat = m }
}

// WithArchive saves the Review to a when the run finishes, whether it
// succeeded or failed.
func WithArchive(a Archive) Option {
	return func(o *options) { o.archive = a }
}

// Run validates the request and prepares one review conversation about
// topic covering numPapers papers. model names the chat model; empty means
// the configured default.
//
// Nothing touches the network until the returned sequence is iterated. The
// search tool and model client are created when iteration starts and
// released when it ends, including when the consumer stops early or ctx is
// cancelled. The Orchestrator reports state and the final Review.
func Run(ctx context.Context, topic string, numPapers int, modelName string, opts ...Option) (iter.Seq2[types.ConversationMessage, error], *conversation.Orchestrator, error) {
	defaults := types.DefaultConfig()
	o := &options{
		search:       defaults.Search,
		model:        defaults.Model,
		conversation: defaults.Conversation,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if modelName = strings.TrimSpace(modelName); modelName != "" {
		o.model.Model = modelName
	}

	req := types.ReviewRequest{Topic: topic, NumPapers: numPapers}
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if err := o.validate(); err != nil {
		return nil, nil, err
	}

	s := &session{opts: o}
	convOpts := []conversation.Option{
		conversation.WithConfig(o.conversation),
		conversation.WithLogger(o.log),
	}
	if o.archive != nil {
		convOpts = append(convOpts, conversation.OnFinish(func(r types.Review) {
			if err := o.archive.Save(context.WithoutCancel(ctx), r); err != nil {
				o.log.Warn("saving review", zap.String("run_id", r.ID), zap.Error(err))
			}
		}))
	}

	orch, err := conversation.New(req, searchProxy{s}, modelProxy{s}, convOpts...)
	if err != nil {
		return nil, nil, err
	}

	seq := func(yield func(types.ConversationMessage, error) bool) {
		if err := s.open(); err != nil {
			yield(types.ConversationMessage{}, err)
			return
		}
		defer s.close()

		for msg, err := range orch.Messages(ctx) {
			if !yield(msg, err) {
				return
			}
		}
	}
	return seq, orch, nil
}

func (o *options) validate() error {
	if o.chat == nil && strings.TrimSpace(o.model.Model) == "" {
		return fmt.Errorf("%w: model name is empty", types.ErrInvalidRequest)
	}
	if o.backend == nil {
		switch o.search.Backend {
		case "", types.BackendArxiv, types.BackendSemanticScholar:
		default:
			return fmt.Errorf("%w: unknown search backend %q", types.ErrInvalidRequest, o.search.Backend)
		}
	}
	return nil
}

// session holds the clients for one iteration. They exist only between
// open and close.
type session struct {
	opts      *options
	tool      *search.Tool
	chat      model.ChatModel
	ownedChat *model.OpenAIClient
}

func (s *session) open() error {
	if s.opts.backend != nil {
		s.tool = search.NewTool(s.opts.backend,
			search.WithRequestInterval(s.opts.search.RequestInterval),
			search.WithLogger(s.opts.log.With(zap.String("component", "search"))))
	} else {
		tool, err := search.New(s.opts.search, s.opts.log)
		if err != nil {
			return err
		}
		s.tool = tool
	}

	if s.opts.chat != nil {
		s.chat = s.opts.chat
		return nil
	}
	client, err := model.NewOpenAI(s.opts.model, s.opts.log)
	if err != nil {
		s.tool.Close()
		s.tool = nil
		return err
	}
	s.chat, s.ownedChat = client, client
	return nil
}

func (s *session) close() {
	if s.tool != nil {
		s.tool.Close()
		s.tool = nil
	}
	if s.ownedChat != nil {
		s.ownedChat.Close()
		s.ownedChat = nil
	}
	s.chat = nil
	s.opts.log.Debug("released review clients")
}

// searchProxy forwards to the session's tool once it is open.
type searchProxy struct{ s *session }

func (p searchProxy) Name() string {
	if p.s.opts.backend != nil {
		return p.s.opts.backend.Name()
	}
	if p.s.opts.search.Backend == "" {
		return string(types.BackendArxiv)
	}
	return string(p.s.opts.search.Backend)
}

func (p searchProxy) Search(ctx context.Context, query string, maxResults int) ([]types.PaperRecord, error) {
	if p.s.tool == nil {
		return nil, fmt.Errorf("search tool used outside an open session")
	}
	return p.s.tool.Search(ctx, query, maxResults)
}

// modelProxy forwards to the session's chat model once it is open.
type modelProxy struct{ s *session }

func (p modelProxy) Name() string {
	if p.s.opts.chat != nil {
		return p.s.opts.chat.Name()
	}
	return p.s.opts.model.Model
}

func (p modelProxy) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if p.s.chat == nil {
		return model.Response{}, fmt.Errorf("chat model used outside an open session")
	}
	return p.s.chat.Complete(ctx, req)
}
