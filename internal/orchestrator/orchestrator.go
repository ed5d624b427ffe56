// Package orchestrator runs the assignment tiers in precedence order and is
// the only writer of the assignment table.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rileyhales/hydrologic-bias-correction/internal/ledger"
	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
	"github.com/rileyhales/hydrologic-bias-correction/internal/network"
	"github.com/rileyhales/hydrologic-bias-correction/internal/propagation"
	"github.com/rileyhales/hydrologic-bias-correction/internal/resolver"
	"github.com/rileyhales/hydrologic-bias-correction/internal/telemetry"
)

// Options configures a run.
type Options struct {
	MaxHops  int
	Workers  int
	Spatial  resolver.DistanceFunc
	Physical resolver.DistanceFunc
}

// Inputs are the tables a run reads. Labels maps basin id to cluster label
// and may be nil.
type Inputs struct {
	Basins []model.Basin
	Gauges []model.Gauge
	Labels map[int64]int
}

// Result is everything a run produced.
type Result struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	MaxHops    int
	Records    []model.AssignmentRecord
	Downstream []model.Candidate
	Upstream   []model.Candidate
	Resolved   []model.Candidate
	Malformed  []*network.MalformedNetworkError
	Summary    model.Summary
}

// Orchestrator drives runs. It holds no per-run state and may be reused.
type Orchestrator struct {
	opts     Options
	log      logrus.FieldLogger
	tracer   trace.Tracer
	assigned metric.Int64Counter
}

// New validates opts and prepares instrumentation.
func New(opts Options, log logrus.FieldLogger) (*Orchestrator, error) {
	if opts.MaxHops < 1 {
		return nil, fmt.Errorf("max hops must be at least 1, got %d", opts.MaxHops)
	}
	if opts.Spatial == nil || opts.Physical == nil {
		return nil, errors.New("spatial and physical distance functions are required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	counter, err := telemetry.Meter("orchestrator").Int64Counter("basinmatch.assignments",
		metric.WithDescription("Assignments merged into the table, by reason"))
	if err != nil {
		return nil, fmt.Errorf("create assignment counter: %w", err)
	}
	return &Orchestrator{
		opts:     opts,
		log:      log,
		tracer:   telemetry.Tracer("orchestrator"),
		assigned: counter,
	}, nil
}

// Run executes every tier and validates the table.
func (o *Orchestrator) Run(ctx context.Context, in Inputs) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "assign.run")
	defer span.End()

	s, err := o.Start(ctx, in)
	if err != nil {
		return nil, spanErr(span, err)
	}
	if err := s.Propagate(ctx); err != nil {
		return nil, spanErr(span, err)
	}
	if err := s.ResolveSimilarity(ctx); err != nil {
		return nil, spanErr(span, err)
	}
	res, err := s.Finish()
	if err != nil {
		return nil, spanErr(span, err)
	}
	span.SetAttributes(
		attribute.String("run.id", res.RunID.String()),
		attribute.Int("basins", res.Summary.Total),
		attribute.Int("unassigned", res.Summary.ByReason[model.ReasonUnassigned]),
	)
	return res, nil
}

// Start seeds the table and builds the network. Malformed components are
// logged and quarantined; the session carries on without them.
func (o *Orchestrator) Start(ctx context.Context, in Inputs) (*Session, error) {
	_, span := o.tracer.Start(ctx, "assign.seed")
	defer span.End()

	runID := uuid.New()
	log := o.log.WithField("run_id", runID.String())

	table, err := ledger.New(in.Basins, in.Gauges, in.Labels, log)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("seed assignment table: %w", err))
	}
	net, err := network.New(in.Basins)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("build network: %w", err))
	}
	for _, m := range net.Malformed() {
		log.WithFields(logrus.Fields{
			"mid":        m.Mid,
			"downstream": m.Downstream,
			"kind":       m.Kind,
			"component":  len(m.Component),
		}).Warn(m.Error() + ", quarantining component")
	}

	sum := table.Summary()
	log.WithFields(logrus.Fields{
		"basins":    sum.Total,
		"gauged":    sum.ByReason[model.ReasonGauged],
		"malformed": net.MalformedComponents(),
	}).Info("assignment table seeded")

	return &Session{
		o:     o,
		log:   log,
		table: table,
		net:   net,
		result: &Result{
			RunID:     runID,
			StartedAt: time.Now().UTC(),
			MaxHops:   o.opts.MaxHops,
			Malformed: net.Malformed(),
		},
	}, nil
}

// Session is one run in progress. Its methods must be called from a single
// goroutine; the fan-outs inside them are internal.
type Session struct {
	o      *Orchestrator
	log    logrus.FieldLogger
	table  *ledger.Table
	net    *network.Network
	result *Result
}

type gaugeCandidates struct {
	down, up []model.Candidate
}

// Propagate walks the network from every gauge, resolves conflicts per basin
// and merges the winners into rows that are still unassigned. Calling it
// again never touches rows that are already resolved.
func (s *Session) Propagate(ctx context.Context) error {
	ctx, span := s.o.tracer.Start(ctx, "assign.propagate")
	defer span.End()

	gauged := s.table.Gauged()
	var gauges []int64
	for _, src := range s.table.Sources() {
		if !s.net.Quarantined(src.Basin.Mid) {
			gauges = append(gauges, src.Basin.Mid)
		}
	}

	p := newProgress(s.log, "propagation", len(gauges))
	found, err := fanOut(ctx, s.o.opts.Workers, gauges, p, func(_ context.Context, g int64) (gaugeCandidates, error) {
		down, up := propagation.ForGauge(s.net, gauged, g, s.o.opts.MaxHops)
		return gaugeCandidates{down: down, up: up}, nil
	})
	if err != nil {
		return spanErr(span, fmt.Errorf("propagation: %w", err))
	}

	var down, up, eligible []model.Candidate
	for _, f := range found {
		down = append(down, f.down...)
		up = append(up, f.up...)
	}
	for _, c := range append(append([]model.Candidate(nil), down...), up...) {
		if rec, ok := s.table.Get(c.Mid); ok && rec.Reason == model.ReasonUnassigned {
			eligible = append(eligible, c)
		}
	}

	mids, groups := resolver.GroupByBasin(eligible)
	p = newProgress(s.log, "conflict resolution", len(mids))
	winners, err := fanOut(ctx, s.o.opts.Workers, mids, p, func(_ context.Context, mid int64) (model.Candidate, error) {
		w, _ := resolver.Winner(groups[mid])
		return w, nil
	})
	if err != nil {
		return spanErr(span, fmt.Errorf("conflict resolution: %w", err))
	}

	for _, w := range winners {
		if err := s.apply(ctx, resolver.ToAssignment(w)); err != nil {
			return spanErr(span, err)
		}
	}

	s.result.Downstream = down
	s.result.Upstream = up
	s.result.Resolved = winners
	span.SetAttributes(
		attribute.Int("gauges", len(gauges)),
		attribute.Int("candidates", len(down)+len(up)),
		attribute.Int("assigned", len(winners)),
	)
	s.log.WithFields(logrus.Fields{
		"gauges":     len(gauges),
		"downstream": len(down),
		"upstream":   len(up),
		"assigned":   len(winners),
	}).Info("propagation merged")
	return nil
}

type similarityOutcome struct {
	assignment model.Assignment
	ok         bool
}

// ResolveSimilarity assigns remaining basins from cluster, spatial and
// physical evidence. Basins in quarantined components are left alone.
func (s *Session) ResolveSimilarity(ctx context.Context) error {
	ctx, span := s.o.tracer.Start(ctx, "assign.similarity")
	defer span.End()

	sim := resolver.NewSimilarity(s.table.Sources(), s.o.opts.Spatial, s.o.opts.Physical)

	var pending []model.AssignmentRecord
	for _, mid := range s.table.UnassignedMids() {
		if s.net.Quarantined(mid) {
			continue
		}
		rec, _ := s.table.Get(mid)
		pending = append(pending, rec)
	}

	p := newProgress(s.log, "similarity", len(pending))
	outcomes, err := fanOut(ctx, s.o.opts.Workers, pending, p, func(_ context.Context, rec model.AssignmentRecord) (similarityOutcome, error) {
		b, _ := s.table.Basin(rec.Mid)
		a, err := sim.Resolve(b, rec.ClusterLabel)
		if errors.Is(err, resolver.ErrMissingEvidence) {
			return similarityOutcome{}, nil
		}
		if err != nil {
			return similarityOutcome{}, err
		}
		return similarityOutcome{assignment: a, ok: true}, nil
	})
	if err != nil {
		return spanErr(span, fmt.Errorf("similarity: %w", err))
	}

	assigned, missing := 0, 0
	for _, out := range outcomes {
		if !out.ok {
			missing++
			continue
		}
		if err := s.apply(ctx, out.assignment); err != nil {
			return spanErr(span, err)
		}
		assigned++
	}

	span.SetAttributes(attribute.Int("assigned", assigned), attribute.Int("missing_evidence", missing))
	fields := logrus.Fields{"assigned": assigned, "missing_evidence": missing}
	if missing > 0 {
		s.log.WithFields(fields).Warn("basins left unassigned: no gauged basin to fall back on")
	} else {
		s.log.WithFields(fields).Info("similarity merged")
	}
	return nil
}

// Finish validates the table and returns the run result.
func (s *Session) Finish() (*Result, error) {
	if err := s.table.Validate(); err != nil {
		return nil, fmt.Errorf("validate assignment table: %w", err)
	}
	sum := s.table.Summary()
	sum.Malformed = s.net.MalformedComponents()
	for _, mid := range s.table.UnassignedMids() {
		if !s.net.Quarantined(mid) {
			sum.MissingEvidence++
		}
	}

	s.result.Records = s.table.Records()
	s.result.Summary = sum
	return s.result, nil
}

// Records returns the table as it stands.
func (s *Session) Records() []model.AssignmentRecord {
	return s.table.Records()
}

func (s *Session) apply(ctx context.Context, a model.Assignment) error {
	if err := s.table.Apply(a); err != nil {
		return fmt.Errorf("merge %s assignment for basin %d: %w", a.Reason, a.Mid, err)
	}
	s.o.assigned.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(a.Reason))))
	return nil
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
