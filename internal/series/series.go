// Package series persists new appointments, expanding recurring drafts
// into one POST per instance or handing the rule to the backend.
package series

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"apptcal/internal/api"
	appLog "apptcal/internal/log"
	"apptcal/internal/metrics"
	"apptcal/internal/model"
	"apptcal/internal/recurrence"
)

var tracer = otel.Tracer("apptcal.internal.series")

// ErrPartialSeries matches any *PartialFailureError.
var ErrPartialSeries = errors.New("series: some instances failed")

// Strategy selects where a series is expanded.
type Strategy string

const (
	// StrategyClient expands locally and POSTs each instance.
	StrategyClient Strategy = "client"
	// StrategyServer sends one POST with the recurrence fields.
	StrategyServer Strategy = "server"
)

// ParseStrategy defaults unknown or empty values to StrategyClient.
func ParseStrategy(s string) Strategy {
	if Strategy(strings.ToLower(strings.TrimSpace(s))) == StrategyServer {
		return StrategyServer
	}
	return StrategyClient
}

// PartialFailureError reports a series where some POSTs failed. Instances
// already created are kept.
type PartialFailureError struct {
	Created int
	Failed  int
	Errors  []error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("series: %d of %d instances failed", e.Failed, e.Created+e.Failed)
}

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialSeries }

func (e *PartialFailureError) Unwrap() []error { return e.Errors }

type TokenIssuer interface {
	Token(ctx context.Context) (string, error)
}

type Poster interface {
	Create(ctx context.Context, token string, req api.CreateRequest) (api.Created, error)
}

// Draft is a submitted create dialog.
type Draft struct {
	First model.Appointment
	// Rule is nil for a single appointment.
	Rule *model.RecurrenceRule
}

// Result counts what was persisted.
type Result struct {
	IDs     []model.ID
	Created int
	Failed  int
	GroupID string
}

type Options struct {
	Tokens     TokenIssuer
	Poster     Poster
	Strategy   Strategy
	Recurrence recurrence.Config
	Metrics    *metrics.CalendarMetrics
}

type Creator struct {
	tokens   TokenIssuer
	poster   Poster
	strategy Strategy
	cfg      recurrence.Config
	metrics  *metrics.CalendarMetrics
}

func NewCreator(opts Options) *Creator {
	if opts.Tokens == nil || opts.Poster == nil {
		panic("series: tokens and poster are required")
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyClient
	}
	return &Creator{
		tokens:   opts.Tokens,
		poster:   opts.Poster,
		strategy: opts.Strategy,
		cfg:      opts.Recurrence,
		metrics:  opts.Metrics,
	}
}

// Create persists d. A rule that overflows the safety cap or is invalid
// fails before anything is sent. With the client strategy a failed
// instance does not stop the rest; the returned Result is valid alongside
// a *PartialFailureError.
func (c *Creator) Create(ctx context.Context, d Draft) (Result, error) {
	ctx, span := tracer.Start(ctx, "series.Create")
	defer span.End()

	first := d.First
	first.ID = ""
	if first.Status == "" {
		first.Status = model.StatusScheduled
	}
	first.NormalizeAllDay(c.cfg.Location)
	if err := first.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid draft")
		return Result{}, err
	}

	if d.Rule == nil {
		span.SetAttributes(attribute.Int("series.instances", 1))
		return c.single(ctx, api.NewCreateRequest(first))
	}

	instances, err := recurrence.Expand(first, *d.Rule, c.cfg)
	if err != nil {
		appLog.Error("series expansion failed", err, "pattern", d.Rule.Pattern)
		span.RecordError(err)
		span.SetStatus(codes.Error, "expansion failed")
		return Result{}, err
	}
	group := instances[0].RecurrenceGroupID
	span.SetAttributes(
		attribute.String("series.strategy", string(c.strategy)),
		attribute.String("series.pattern", string(d.Rule.Pattern)),
		attribute.Int("series.instances", len(instances)),
	)

	if c.strategy == StrategyServer {
		res, err := c.single(ctx, api.NewCreateRequest(instances[0]).WithRule(*d.Rule))
		res.GroupID = group
		return res, err
	}

	res := Result{GroupID: group}
	var errs []error
	for i, inst := range instances {
		id, err := c.post(ctx, api.NewCreateRequest(inst))
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("instance %d (%s): %w", i+1, inst.Start.Format(model.DateLayout), err))
			continue
		}
		res.Created++
		res.IDs = append(res.IDs, id)
	}
	c.metrics.ObserveCreated(res.Created, res.Failed)
	appLog.Info("series created", "group", group, "created", res.Created, "failed", res.Failed)

	if res.Failed > 0 {
		perr := &PartialFailureError{Created: res.Created, Failed: res.Failed, Errors: errs}
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		return res, perr
	}
	return res, nil
}

func (c *Creator) single(ctx context.Context, req api.CreateRequest) (Result, error) {
	id, err := c.post(ctx, req)
	if err != nil {
		c.metrics.ObserveCreated(0, 1)
		return Result{Failed: 1}, err
	}
	c.metrics.ObserveCreated(1, 0)
	return Result{IDs: []model.ID{id}, Created: 1}, nil
}

// post fetches a fresh token for every request.
func (c *Creator) post(ctx context.Context, req api.CreateRequest) (model.ID, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	created, err := c.poster.Create(ctx, token, req)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}
