package reconcile

import (
	"context"
	"fmt"
	"time"

	"resub/internal/apierr"
	"resub/internal/snapshot"

	"github.com/cenkalti/backoff/v5"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Service is the subscription API the reconciler drives. Subscribe and
// Unsubscribe report handled failures as *apierr.Error.
type Service interface {
	Subscriptions(ctx context.Context) ([]string, error)
	Subscribe(ctx context.Context, name string) error
	Unsubscribe(ctx context.Context, name string) error
}

type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"

	// ActionExport is only recorded in history, never applied.
	ActionExport Action = "export"
)

type Outcome string

const (
	OutcomeSubscribed       Outcome = "subscribed"
	OutcomeUnsubscribed     Outcome = "unsubscribed"
	OutcomeSkippedNotFound  Outcome = "skipped_not_found"
	OutcomeSkippedForbidden Outcome = "skipped_forbidden"
	OutcomeSkippedTransient Outcome = "skipped_transient"
	OutcomePlanned          Outcome = "planned"
	OutcomeFailed           Outcome = "failed"
	OutcomeSaved            Outcome = "saved"
)

// Op is one finished subscribe or unsubscribe.
type Op struct {
	Action   Action
	Name     string
	Outcome  Outcome
	Attempts int
	Err      error
}

type Result struct {
	Plan Plan
	Ops  []Op
}

func (r *Result) Count(o Outcome) int {
	n := 0
	for _, op := range r.Ops {
		if op.Outcome == o {
			n++
		}
	}
	return n
}

// Skipped counts operations that failed in a recoverable way.
func (r *Result) Skipped() int {
	return r.Count(OutcomeSkippedNotFound) + r.Count(OutcomeSkippedForbidden) + r.Count(OutcomeSkippedTransient)
}

type Option func(*Reconciler)

// WithDelay sets the minimum spacing between consecutive service calls.
func WithDelay(d time.Duration) Option {
	return func(r *Reconciler) { r.delay = d }
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(r *Reconciler) { r.retries = n }
}

// WithBackoff sets the first retry interval; later ones grow exponentially.
func WithBackoff(d time.Duration) Option {
	return func(r *Reconciler) { r.backoff = d }
}

func WithDryRun(dry bool) Option {
	return func(r *Reconciler) { r.dryRun = dry }
}

// WithObserver registers fn to be called after every operation.
func WithObserver(fn func(Op)) Option {
	return func(r *Reconciler) { r.observe = fn }
}

type Reconciler struct {
	svc     Service
	delay   time.Duration
	retries int
	backoff time.Duration
	dryRun  bool
	observe func(Op)
	limiter *rate.Limiter
}

func New(svc Service, opts ...Option) *Reconciler {
	r := &Reconciler{
		svc:     svc,
		delay:   2 * time.Second,
		retries: 3,
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retries < 0 {
		r.retries = 0
	}

	limit := rate.Inf
	if r.delay > 0 {
		limit = rate.Every(r.delay)
	}
	r.limiter = rate.NewLimiter(limit, 1)
	return r
}

// Current fetches the live subscription set.
func (r *Reconciler) Current(ctx context.Context) (mapset.Set[string], error) {
	names, _, err := retry(ctx, r, func() ([]string, error) {
		return r.svc.Subscriptions(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return mapset.NewSet(names...), nil
}

// Sync brings the account in line with desired.
func (r *Reconciler) Sync(ctx context.Context, desired mapset.Set[string]) (*Result, error) {
	current, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	plan := Reconcile(desired, current)
	log.Info().
		Int("desired", desired.Cardinality()).
		Int("current", current.Cardinality()).
		Int("subscribe", plan.ToSubscribe.Cardinality()).
		Int("unsubscribe", plan.ToUnsubscribe.Cardinality()).
		Msg("reconciliation planned")
	return r.Apply(ctx, plan)
}

// Apply subscribes to everything in plan.ToSubscribe, then unsubscribes
// from everything in plan.ToUnsubscribe. Not-found, forbidden and
// retried-out transient failures are logged and skipped. Any other error
// stops the pass and is returned together with the operations done so far.
func (r *Reconciler) Apply(ctx context.Context, plan Plan) (*Result, error) {
	res := &Result{Plan: plan}

	steps := []struct {
		action Action
		names  mapset.Set[string]
	}{
		{ActionSubscribe, plan.ToSubscribe},
		{ActionUnsubscribe, plan.ToUnsubscribe},
	}

	for _, step := range steps {
		if step.names == nil {
			continue
		}
		for _, name := range snapshot.Export(step.names) {
			op, err := r.apply(ctx, step.action, name)
			res.Ops = append(res.Ops, op)
			if r.observe != nil {
				r.observe(op)
			}
			if err != nil {
				return res, fmt.Errorf("%s r/%s: %w", step.action, name, err)
			}
		}
	}
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, action Action, name string) (Op, error) {
	op := Op{Action: action, Name: name}
	logger := log.With().Str("action", string(action)).Str("subreddit", name).Logger()

	if r.dryRun {
		op.Outcome = OutcomePlanned
		logger.Info().Msg("dry run, not calling the API")
		return op, nil
	}

	call := r.svc.Subscribe
	done := OutcomeSubscribed
	if action == ActionUnsubscribe {
		call = r.svc.Unsubscribe
		done = OutcomeUnsubscribed
	}

	_, attempts, err := retry(ctx, r, func() (struct{}, error) {
		return struct{}{}, call(ctx, name)
	})
	op.Attempts = attempts
	op.Err = err

	switch {
	case err == nil:
		op.Outcome = done
		logger.Info().Msgf("%s r/%s", done, name)
	case apierr.IsNotFound(err):
		op.Outcome = OutcomeSkippedNotFound
		if action == ActionUnsubscribe {
			logger.Warn().Msgf("not subscribed to r/%s, skipping", name)
		} else {
			logger.Warn().Msgf("r/%s does not exist, skipping", name)
		}
	case apierr.IsForbidden(err):
		op.Outcome = OutcomeSkippedForbidden
		logger.Warn().Msgf("r/%s is private or banned, skipping", name)
	case apierr.IsTransient(err):
		op.Outcome = OutcomeSkippedTransient
		logger.Warn().Err(err).Int("attempts", attempts).Msgf("giving up on r/%s", name)
	default:
		op.Outcome = OutcomeFailed
		logger.Error().Err(err).Msg("operation failed")
		return op, err
	}
	return op, nil
}

// retry runs fn under the rate limiter, retrying transient errors with
// exponential backoff. It returns the number of calls made.
func retry[T any](ctx context.Context, r *Reconciler, fn func() (T, error)) (T, int, error) {
	attempts := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		attempts++
		v, err := fn()
		if err != nil && !apierr.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempts).Msg("transient failure")
		}
		return v, err
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(uint(r.retries+1)))
	return v, attempts, err
}

func (r *Reconciler) newBackOff() backoff.BackOff {
	if r.backoff <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.backoff
	b.MaxInterval = 10 * r.backoff
	return b
}
