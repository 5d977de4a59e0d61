// Package resolver is the top-level façade: it runs blocking to shrink the
// candidate universe, scores the survivors, classifies each pair, and
// optionally queues ambiguous pairs for human review.
//
// Auto-queueing is modeled as explicit task emission: potential matches are
// handed to a resolver-owned worker through a buffered channel, Resolve
// returns synchronously with respect to scoring, and callers that need the
// queue writes durable before proceeding call Flush.
package resolver

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/blocking"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/logging"
	"github.com/agentstation/resolve/pkg/merge"
	"github.com/agentstation/resolve/pkg/queue"
	"github.com/agentstation/resolve/pkg/record"
	"github.com/agentstation/resolve/pkg/scoring"
)

const (
	defaultMaxFetchSize    = 1000
	defaultAutoQueueBuffer = 64
)

// Resolver wires blocking, scoring, merging, and the review queue together.
type Resolver struct {
	engine       *scoring.Engine
	strategy     blocking.Strategy
	mergeConfig  merge.Config
	adapters     adapter.Adapters
	logger       *zerolog.Logger
	maxFetchSize int

	queueOnce sync.Once
	queue     *queue.Queue
	queueErr  error

	tasks     chan autoQueueTask
	taskWG    sync.WaitGroup
	workerWG  sync.WaitGroup
	closeOnce sync.Once
}

type autoQueueTask struct {
	candidate record.Record
	matches   []adapter.PotentialMatch
	opts      queue.AddOptions
}

// Option configures a Resolver.
type Option func(*Resolver) error

// WithLogger injects a logger. Defaults to the Nop logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(r *Resolver) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithScoring sets the match scoring configuration. Required.
func WithScoring(config scoring.Config) Option {
	return func(r *Resolver) error {
		engine, err := scoring.NewEngine(config)
		if err != nil {
			return err
		}
		r.engine = engine
		return nil
	}
}

// WithBlocking sets the blocking strategy used to shrink the candidate
// universe. Without one, every existing record is scored.
func WithBlocking(strategy blocking.Strategy) Option {
	return func(r *Resolver) error {
		r.strategy = strategy
		return nil
	}
}

// WithMerge sets the merge configuration handed to the review queue.
func WithMerge(config merge.Config) Option {
	return func(r *Resolver) error {
		r.mergeConfig = config
		return nil
	}
}

// WithAdapters wires external persistence.
func WithAdapters(adapters adapter.Adapters) Option {
	return func(r *Resolver) error {
		r.adapters = adapters
		return nil
	}
}

// WithMaxFetchSize bounds database-sourced candidate fetches.
func WithMaxFetchSize(n int) Option {
	return func(r *Resolver) error {
		if n < 1 {
			return errors.NewValidationError("maxFetchSize", n, "must be at least 1")
		}
		r.maxFetchSize = n
		return nil
	}
}

// WithAutoQueueBuffer sizes the auto-queue task channel. Tasks beyond the
// buffer are dropped with a warning rather than blocking Resolve.
func WithAutoQueueBuffer(n int) Option {
	return func(r *Resolver) error {
		if n < 1 {
			return errors.NewValidationError("autoQueueBuffer", n, "must be at least 1")
		}
		r.tasks = make(chan autoQueueTask, n)
		return nil
	}
}

// New creates a Resolver. A scoring configuration is required; everything
// else is optional.
func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{
		logger:       &logging.Nop,
		maxFetchSize: defaultMaxFetchSize,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.engine == nil {
		return nil, errors.NewValidationError("scoring", nil, "a scoring configuration is required")
	}
	if r.tasks == nil {
		r.tasks = make(chan autoQueueTask, defaultAutoQueueBuffer)
	}

	r.workerWG.Add(1)
	go r.runAutoQueue()
	return r, nil
}

// Queue returns the review-queue façade. It fails with a QueueError when
// no queue adapter is configured.
func (r *Resolver) Queue() (*queue.Queue, error) {
	r.queueOnce.Do(func() {
		if r.adapters.Queue == nil {
			r.queueErr = errors.NewQueueError("no queue adapter configured", errors.ErrNoQueueAdapter)
			return
		}
		r.queue, r.queueErr = queue.New(r.adapters,
			queue.WithLogger(r.logger),
			queue.WithMergeConfig(r.mergeConfig),
		)
	})
	return r.queue, r.queueErr
}

// Flush blocks until every auto-queue task emitted so far has been
// processed, or the context expires.
func (r *Resolver) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.taskWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.NewQueueError("auto-queue flush interrupted", ctx.Err())
	}
}

// Close stops the auto-queue worker after draining emitted tasks. The
// resolver's scoring paths stay usable; only auto-queueing stops.
func (r *Resolver) Close() error {
	r.closeOnce.Do(func() {
		r.taskWG.Wait()
		close(r.tasks)
		r.workerWG.Wait()
	})
	return nil
}

func (r *Resolver) runAutoQueue() {
	defer r.workerWG.Done()
	for task := range r.tasks {
		r.processAutoQueueTask(task)
		r.taskWG.Done()
	}
}

func (r *Resolver) processAutoQueueTask(task autoQueueTask) {
	q, err := r.Queue()
	if err != nil {
		r.logger.Warn().Err(err).Msg("auto-queue task dropped: queue unavailable")
		return
	}
	if _, err := q.Add(context.Background(), task.candidate, task.matches, &task.opts); err != nil {
		r.logger.Warn().
			Err(err).
			Str("candidate_id", task.candidate.ID()).
			Msg("auto-queue insert failed")
	}
}

// emitAutoQueueTask hands a potential-match set to the worker. A full
// buffer drops the task: auto-queueing is best effort and never blocks
// scoring.
func (r *Resolver) emitAutoQueueTask(task autoQueueTask) {
	if task.candidate.ID() == "" {
		r.logger.Warn().Msg("auto-queue skipped: candidate record lacks a stable id")
		return
	}
	r.taskWG.Add(1)
	select {
	case r.tasks <- task:
	default:
		r.taskWG.Done()
		r.logger.Warn().
			Str("candidate_id", task.candidate.ID()).
			Msg("auto-queue buffer full, task dropped")
	}
}

// Match pairs an existing record with its score against the candidate.
type Match struct {
	Record record.Record      `json:"record"`
	Result scoring.MatchResult `json:"result"`
}

// Resolution is the outcome of resolving one candidate.
type Resolution struct {
	Candidate record.Record `json:"candidate"`
	// Matches holds every scored pair, best first.
	Matches []Match `json:"matches"`
	// Compared is the number of records scored after blocking.
	Compared int `json:"compared"`
	// Queued reports whether a review task was emitted.
	Queued bool `json:"queued"`
}

// Definite returns the matches classified definite-match, best first.
func (res *Resolution) Definite() []Match {
	return res.byOutcome(scoring.OutcomeDefinite)
}

// Potential returns the matches classified potential-match, best first.
func (res *Resolution) Potential() []Match {
	return res.byOutcome(scoring.OutcomePotential)
}

func (res *Resolution) byOutcome(outcome scoring.Outcome) []Match {
	var out []Match
	for _, m := range res.Matches {
		if m.Result.Outcome == outcome {
			out = append(out, m)
		}
	}
	return out
}

// Best returns the highest-scoring match, if any.
func (res *Resolution) Best() (Match, bool) {
	if len(res.Matches) == 0 {
		return Match{}, false
	}
	return res.Matches[0], true
}

// Options tune a single resolution.
type Options struct {
	// AutoQueue emits a review task when potential matches are found.
	AutoQueue bool
	// QueueContext, QueuePriority, and QueueTags annotate the queued item.
	QueueContext  map[string]any
	QueuePriority int
	QueueTags     []string
}

// Resolve scores the candidate against the existing records. When a
// blocking strategy is configured, only records sharing a block with the
// candidate are scored; records missing blocking fields never match the
// candidate's block but stay in the caller's universe untouched.
func (r *Resolver) Resolve(ctx context.Context, candidate record.Record, existing []record.Record, opts *Options) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapCanceled(err)
	}
	if opts == nil {
		opts = &Options{}
	}

	pool := existing
	if r.strategy != nil {
		pool = pool[:0:0]
		for _, i := range r.strategy.Candidates(candidate, existing) {
			pool = append(pool, existing[i])
		}
	}

	res := &Resolution{Candidate: candidate, Compared: len(pool)}
	for _, other := range pool {
		result := r.engine.Score(candidate, other)
		res.Matches = append(res.Matches, Match{Record: other, Result: result})
	}
	sortMatches(res.Matches)

	if opts.AutoQueue {
		res.Queued = r.maybeQueue(res, opts)
	}

	r.logger.Debug().
		Str("candidate_id", candidate.ID()).
		Int("universe", len(existing)).
		Int("compared", res.Compared).
		Int("matches", len(res.Matches)).
		Bool("queued", res.Queued).
		Msg("resolved candidate")
	return res, nil
}

// maybeQueue emits a review task covering the resolution's potential
// matches. Definite and no-match pairs are never queued.
func (r *Resolver) maybeQueue(res *Resolution, opts *Options) bool {
	potential := res.Potential()
	if len(potential) == 0 {
		return false
	}
	matches := make([]adapter.PotentialMatch, len(potential))
	for i, m := range potential {
		matches[i] = adapter.PotentialMatch{
			Record:      m.Record,
			Score:       m.Result.TotalScore,
			Outcome:     m.Result.Outcome,
			Explanation: m.Result.Explanation(),
		}
	}
	r.emitAutoQueueTask(autoQueueTask{
		candidate: res.Candidate,
		matches:   matches,
		opts: queue.AddOptions{
			Context:  opts.QueueContext,
			Priority: opts.QueuePriority,
			Tags:     opts.QueueTags,
		},
	})
	return true
}

// ResolveWithDatabase resolves a candidate against records fetched from
// the configured database adapter, bounded by the max fetch size. The
// candidate's own row is excluded.
func (r *Resolver) ResolveWithDatabase(ctx context.Context, candidate record.Record, opts *Options) (*Resolution, error) {
	if r.adapters.Database == nil {
		return nil, errors.NewQueueError("no database adapter configured", errors.ErrNoQueueAdapter)
	}

	existing, err := r.fetchCandidates(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if id := candidate.ID(); id != "" {
		filtered := existing[:0]
		for _, rec := range existing {
			if rec.ID() != id {
				filtered = append(filtered, rec)
			}
		}
		existing = filtered
	}
	return r.Resolve(ctx, candidate, existing, opts)
}

func (r *Resolver) fetchCandidates(ctx context.Context, candidate record.Record) ([]record.Record, error) {
	query := &adapter.QueryOptions{Limit: r.maxFetchSize}
	if r.strategy != nil {
		if key, ok := r.strategy.Generate(candidate); ok {
			// The store must fold fields the way the strategy derived the
			// key, or transformed keys never match anything.
			query.KeyNormalizer = r.strategy.Descriptor().KeyNormalizer()
			return r.adapters.Database.FindByBlockingKeys(ctx, key, query)
		}
		// The candidate has no derivable block; fall back to a bounded scan.
		r.logger.Debug().
			Str("candidate_id", candidate.ID()).
			Msg("no blocking key derivable, scanning")
	}
	return r.adapters.Database.FindAll(ctx, query)
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Result.TotalScore > matches[j].Result.TotalScore
	})
}
