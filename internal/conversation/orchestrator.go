// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package conversation runs the two-party review protocol. An Orchestrator
// is an explicit state machine (idle, searcher turn, summarizer turn, then
// done or failed) that drives one searcher turn and one summarizer turn and
// exposes every message they produce as a lazy sequence.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/litrev/internal/metrics"
	"github.com/pdiddy/litrev/internal/model"
	"github.com/pdiddy/litrev/internal/search"
	"github.com/pdiddy/litrev/pkg/types"
)

// Searcher is the search capability bound to the searcher role.
// *search.Tool satisfies it.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]types.PaperRecord, error)
}

// Orchestrator runs one review conversation. It is single-use.
type Orchestrator struct {
	req        types.ReviewRequest
	tool       Searcher
	chat       model.ChatModel
	cfg        types.ConversationConfig
	searcher   Role
	summarizer Role
	log        *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	state    types.RunState
	started  bool
	seq      int
	review   types.Review
	onFinish []func(types.Review)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets the protocol settings.
func WithConfig(cfg types.ConversationConfig) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source used for message and run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// OnFinish registers fn to receive the Review when the run reaches done or
// failed. Callbacks run on the iterating goroutine.
func OnFinish(fn func(types.Review)) Option {
	return func(o *Orchestrator) { o.onFinish = append(o.onFinish, fn) }
}

// New validates req and prepares a conversation. No network call is made
// until the sequence returned by Messages is iterated.
func New(req types.ReviewRequest, tool Searcher, chat model.ChatModel, opts ...Option) (*Orchestrator, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if tool == nil {
		return nil, errors.New("search tool is required")
	}
	if chat == nil {
		return nil, errors.New("chat model is required")
	}

	o := &Orchestrator{
		req:   req,
		tool:  tool,
		chat:  chat,
		cfg:   types.DefaultConfig().Conversation,
		log:   zap.NewNop(),
		now:   time.Now,
		state: types.StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.MaxToolRounds <= 0 {
		o.cfg.MaxToolRounds = 1
	}

	var err error
	if o.searcher, err = SearcherRole(req, o.cfg.ReflectOnToolUse); err != nil {
		return nil, err
	}
	if o.summarizer, err = SummarizerRole(); err != nil {
		return nil, err
	}

	o.review = types.Review{
		ID:      uuid.NewString(),
		Request: req,
		Model:   chat.Name(),
		State:   types.StateIdle,
	}
	o.log = o.log.With(zap.String("component", "conversation"), zap.String("run_id", o.review.ID))
	return o, nil
}

// ID returns the run identifier.
func (o *Orchestrator) ID() string { return o.review.ID }

// State returns the current state.
func (o *Orchestrator) State() types.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Review returns a snapshot of the run outcome. It is complete once the
// state is done or failed.
func (o *Orchestrator) Review() types.Review {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.review
	r.Candidates = append([]types.PaperRecord(nil), o.review.Candidates...)
	r.Selected = append([]types.PaperRecord(nil), o.review.Selected...)
	r.Transcript = append([]types.ConversationMessage(nil), o.review.Transcript...)
	return r
}

// Messages returns the conversation as a lazy sequence. Each message is
// yielded as soon as it is produced. A failure is yielded once as the final
// element with a zero message. Stopping early ends the run with
// ErrAbandoned and issues no further turns. The sequence can be consumed
// once; later iterations yield only ErrAlreadyRun.
func (o *Orchestrator) Messages(ctx context.Context) iter.Seq2[types.ConversationMessage, error] {
	return func(yield func(types.ConversationMessage, error) bool) {
		o.mu.Lock()
		if o.started {
			o.mu.Unlock()
			yield(types.ConversationMessage{}, ErrAlreadyRun)
			return
		}
		o.started = true
		o.review.StartedAt = o.now()
		o.mu.Unlock()

		metrics.RunsInFlight.Inc()
		defer metrics.RunsInFlight.Dec()

		o.log.Info("review started",
			zap.String("topic", o.req.Topic),
			zap.Int("num_papers", o.req.NumPapers),
			zap.String("model", o.chat.Name()),
			zap.String("search", o.tool.Name()))

		err := o.run(ctx, o.emitter(yield))
		o.finish(err)
		if err != nil && !errors.Is(err, ErrAbandoned) {
			yield(types.ConversationMessage{}, err)
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, emit emitFunc) error {
	if err := o.advance(types.StateIdle, types.StateSearcherTurn); err != nil {
		return err
	}
	err := o.searcherTurn(ctx, emit)
	metrics.RecordTurn(o.searcher.Name, err)
	if err != nil {
		return err
	}

	if err := o.advance(types.StateSearcherTurn, types.StateSummarizerTurn); err != nil {
		return err
	}
	err = o.summarizerTurn(ctx, emit)
	metrics.RecordTurn(o.summarizer.Name, err)
	if err != nil {
		return err
	}

	return o.advance(types.StateSummarizerTurn, types.StateDone)
}

// advance moves the state machine from one state to the next. Any other
// transition is a protocol violation.
func (o *Orchestrator) advance(from, to types.RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from {
		return violation("orchestrator", "cannot move to %s from %s", to, o.state)
	}
	o.state = to
	o.review.State = to
	o.log.Debug("state", zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	if err != nil {
		o.state = types.StateFailed
		o.review.Error = err.Error()
	}
	o.review.State = o.state
	o.review.FinishedAt = o.now()
	review := o.review
	callbacks := o.onFinish
	o.mu.Unlock()

	metrics.RecordRun(string(review.State), review.Duration())

	var pe *ProtocolError
	if errors.As(err, &pe) {
		metrics.RecordProtocolViolation(pe.Role)
	}

	if err != nil {
		o.log.Warn("review failed", zap.Error(err), zap.Duration("duration", review.Duration()))
	} else {
		o.log.Info("review done",
			zap.Int("candidates", len(review.Candidates)),
			zap.Int("selected", len(review.Selected)),
			zap.Int("messages", len(review.Transcript)),
			zap.Duration("duration", review.Duration()))
	}

	for _, fn := range callbacks {
		fn(o.Review())
	}
}

// emitFunc appends a message to the transcript and hands it to the
// consumer. It returns ErrAbandoned when the consumer stops.
type emitFunc func(sender types.Sender, kind types.MessageKind, tool, content string) error

func (o *Orchestrator) emitter(yield func(types.ConversationMessage, error) bool) emitFunc {
	return func(sender types.Sender, kind types.MessageKind, tool, content string) error {
		o.mu.Lock()
		o.seq++
		msg := types.ConversationMessage{
			Seq:       o.seq,
			Sender:    sender,
			Kind:      kind,
			Content:   content,
			Tool:      tool,
			CreatedAt: o.now(),
		}
		o.review.Transcript = append(o.review.Transcript, msg)
		o.mu.Unlock()

		metrics.RecordMessage(string(sender), string(kind))
		if !yield(msg, nil) {
			o.log.Info("consumer stopped iterating", zap.Int("seq", msg.Seq))
			return ErrAbandoned
		}
		return nil
	}
}

// complete calls the chat model on behalf of role. Errors other than
// cancellation are reported as model unavailability.
func (o *Orchestrator) complete(ctx context.Context, role string, req model.Request) (model.Response, error) {
	if err := ctx.Err(); err != nil {
		return model.Response{}, err
	}
	start := time.Now()
	resp, err := o.chat.Complete(ctx, req)
	metrics.RecordModelCall(role, o.chat.Name(), time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Response{}, ctxErr
		}
		if !errors.Is(err, model.ErrUnavailable) {
			err = &model.UnavailableError{Model: o.chat.Name(), Err: err}
		}
		return model.Response{}, fmt.Errorf("%s turn: %w", role, err)
	}
	return resp, nil
}

// searchPapers calls the bound tool. Errors other than cancellation are
// reported as search unavailability.
func (o *Orchestrator) searchPapers(ctx context.Context, query string, maxResults int) ([]types.PaperRecord, error) {
	start := time.Now()
	results, err := o.tool.Search(ctx, query, maxResults)
	metrics.RecordToolCall(SearchToolName, time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, search.ErrUnavailable) {
			err = &search.UnavailableError{Backend: o.tool.Name(), Err: err}
		}
		return nil, fmt.Errorf("%s: %w", SearchToolName, err)
	}
	return results, nil
}
