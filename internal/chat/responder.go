package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"fluxmare/internal/domain"
	"fluxmare/internal/estimation"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
	"fluxmare/internal/validation"
)

// ErrResponderClosed is returned by Submit after Close.
var ErrResponderClosed = errors.New("responder closed")

// DelayFunc picks how long the bot "thinks" before replying.
type DelayFunc func() time.Duration

// RandomDelay returns a DelayFunc uniform in [lo, hi).
func RandomDelay(rnd estimation.RandomSource, lo, hi time.Duration) DelayFunc {
	if hi < lo {
		lo, hi = hi, lo
	}
	return func() time.Duration {
		return lo + time.Duration(rnd.Float64()*float64(hi-lo))
	}
}

// Submission is what Submit accepted. The bot reply arrives later.
type Submission struct {
	ConversationID string               `json:"conversationId"`
	Message        domain.Message       `json:"message"`
	SavedInput     *domain.SavedInput   `json:"savedInput,omitempty"`
	Features       *domain.FeatureInput `json:"features,omitempty"`
	ReplyAfter     time.Duration        `json:"-"`
}

// Responder appends user messages and schedules the delayed bot reply.
type Responder struct {
	estimator *estimation.Estimator
	history   *InputHistory
	rnd       estimation.RandomSource
	delay     DelayFunc
	logger    observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
	wg     sync.WaitGroup
}

// ResponderConfig wires a Responder.
type ResponderConfig struct {
	Estimator *estimation.Estimator
	History   *InputHistory
	Random    estimation.RandomSource
	Delay     DelayFunc
	Logger    observability.Logger
	Metrics   *observability.Metrics
	Now       func() time.Time
}

func NewResponder(cfg ResponderConfig) *Responder {
	if cfg.Random == nil {
		cfg.Random = estimation.DefaultRandom()
	}
	if cfg.Delay == nil {
		cfg.Delay = RandomDelay(cfg.Random, time.Second, 2*time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.DefaultConfig())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Responder{
		estimator: cfg.Estimator,
		history:   cfg.History,
		rnd:       cfg.Random,
		delay:     cfg.Delay,
		logger:    cfg.Logger.WithComponent("responder"),
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		timers:    make(map[*time.Timer]struct{}),
	}
}

// Submit validates the optional features, appends the user message and
// records the saved input, then schedules the reply. A rejected submission
// leaves no trace.
func (r *Responder) Submit(ctx context.Context, s *Session, req domain.SubmitRequest) (Submission, error) {
	var in *domain.FeatureInput
	if req.Features != nil {
		v, err := validation.ValidateFeatures(*req.Features)
		if err != nil {
			r.metrics.RecordValidationFailure(FailureReason(err))
			return Submission{}, err
		}
		in = &v
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return Submission{}, ErrResponderClosed
	}

	content := req.Content
	if content == "" && req.Features != nil {
		content = validation.FeatureSummary(*req.Features)
	}
	since := r.now()
	convID, msg, err := s.AppendUserMessage(ctx, content)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{ConversationID: convID, Message: msg, Features: in}

	if in != nil && r.history != nil {
		saved, err := r.history.Record(ctx, *req.Features, *in)
		if err != nil {
			r.logger.WarnContext(ctx, "saved input not recorded", "error", err)
		} else {
			sub.SavedInput = &saved
		}
	}

	replyCtx := context.WithoutCancel(ctx)
	sub.ReplyAfter = r.delay()
	if !r.schedule(sub.ReplyAfter, func() { r.reply(replyCtx, s, convID, content, in, since) }) {
		r.logger.WarnContext(ctx, "responder closed before reply was scheduled", "conversation", convID)
	}
	return sub, nil
}

// Close stops pending replies. Replies already running complete.
func (r *Responder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	dropped := 0
	for t := range r.timers {
		if t.Stop() {
			dropped++
			r.wg.Done()
		}
	}
	r.timers = map[*time.Timer]struct{}{}
	if dropped > 0 {
		r.logger.Warn("pending bot replies dropped at shutdown", "count", dropped)
	}
}

// Wait blocks until every scheduled reply has run or been stopped.
func (r *Responder) Wait() {
	r.wg.Wait()
}

// Pending reports how many replies are scheduled but not yet delivered.
func (r *Responder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *Responder) schedule(d time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		defer r.wg.Done()
		r.mu.Lock()
		delete(r.timers, t)
		r.mu.Unlock()
		fn()
	})
	r.timers[t] = struct{}{}
	return true
}

func (r *Responder) reply(ctx context.Context, s *Session, convID, content string, in *domain.FeatureInput, since time.Time) {
	var (
		text      string
		dashboard *domain.DashboardResult
		kind      = "canned"
	)
	if in != nil {
		d := r.estimator.Estimate(*in)
		dashboard = &d
		text = estimation.ReplyText(d)
		kind = "prediction"
		r.metrics.RecordEstimation()
	} else {
		text = estimation.CannedReply(r.rnd, content)
	}
	if _, err := s.AppendBotMessage(ctx, convID, text, dashboard, since); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.InfoContext(ctx, "conversation gone before reply", "conversation", convID)
		} else {
			r.logger.ErrorContext(ctx, "bot reply not stored", "conversation", convID, "error", err)
		}
		return
	}
	r.metrics.RecordBotReply(kind)
}

// FailureReason labels a validation error for metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, validation.ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, validation.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, validation.ErrInvalidFormat):
		return "invalid_format"
	default:
		return "other"
	}
}
