package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/caldora-sync/davclient"
	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

// Outcome of reconciling one item
type Outcome int

const (
	Failed Outcome = iota
	Created
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "failed"
	}
}

// Collection is the part of the DAV client the engine needs.
// *davclient.Client implements it.
type Collection interface {
	GetItemByUID(ctx context.Context, collection, kind, uid string) (*davclient.CalendarObject, error)
	AddMember(ctx context.Context, collection string, cal *ical.Calendar) (*davclient.CalendarObject, error)
	PutObject(ctx context.Context, href string, cal *ical.Calendar, etag mo.Option[string]) (mo.Option[string], error)
}

// Result of one item. Href and ETag describe the remote object after the
// write, when known.
type Result struct {
	UID     string
	Outcome Outcome
	Href    string
	ETag    mo.Option[string]
	Err     error
}

// Report aggregates a batch.
type Report struct {
	Seen      int
	Created   int
	Updated   int
	Unchanged int
	Failed    int
	Results   []Result
}

func (r *Report) add(res Result) {
	r.Seen++
	switch res.Outcome {
	case Created:
		r.Created++
	case Updated:
		r.Updated++
	case Unchanged:
		r.Unchanged++
	default:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// Err joins the errors of every failed item, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.UID, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Engine reconciles items into one collection. It keeps no state between
// items.
type Engine struct {
	client     Collection
	collection string
	logger     *slog.Logger
	dryRun     bool
	now        func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDryRun decides outcomes without writing anything.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// WithClock overrides the time written to DTSTAMP and LAST-MODIFIED.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine writing to collection through client.
func NewEngine(client Collection, collection string, opts ...Option) *Engine {
	e := &Engine{
		client:     client,
		collection: collection,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run reconciles items in order. A failed item never stops the batch.
func (e *Engine) Run(ctx context.Context, items []Item) Report {
	var report Report
	for _, item := range items {
		report.add(e.Reconcile(ctx, item))
	}
	e.logger.Info("reconciliation finished",
		"collection", e.collection,
		"seen", report.Seen,
		"created", report.Created,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"failed", report.Failed,
		"dry_run", e.dryRun)
	return report
}

// Reconcile converges the remote copy of one item.
func (e *Engine) Reconcile(ctx context.Context, item Item) Result {
	res := e.reconcile(ctx, item)
	if res.Err != nil {
		e.logger.Warn("item failed", "uid", item.UID, "error", res.Err)
	} else {
		e.logger.Info("item reconciled", "uid", item.UID, "outcome", res.Outcome.String(), "href", res.Href)
	}
	return res
}

func (e *Engine) reconcile(ctx context.Context, item Item) Result {
	res := Result{UID: item.UID, Outcome: Failed}
	if err := item.validate(); err != nil {
		res.Err = err
		return res
	}

	old, err := e.client.GetItemByUID(ctx, e.collection, item.Kind, item.UID)
	if daverr.IsNotFound(err) {
		old = nil
	} else if err != nil {
		res.Err = fmt.Errorf("failed to look up item: %w", err)
		return res
	}

	cal, target, err := item.build(old)
	if err != nil {
		res.Err = err
		return res
	}

	if old == nil {
		e.stamp(target)
		if e.dryRun {
			res.Outcome = Created
			return res
		}
		obj, err := e.client.AddMember(ctx, e.collection, cal)
		if err != nil {
			res.Err = fmt.Errorf("failed to create item: %w", err)
			return res
		}
		res.Outcome, res.Href, res.ETag = Created, obj.Href, obj.ETag
		return res
	}

	res.Href, res.ETag = old.Href, old.ETag
	if bytes.Equal(Normalize(old.Calendar), Normalize(cal)) {
		res.Outcome = Unchanged
		return res
	}

	e.stamp(target)
	if e.dryRun {
		res.Outcome = Updated
		return res
	}
	if !old.ETag.IsPresent() {
		e.logger.Warn("server sent no ETag, updating unconditionally", "uid", item.UID, "href", old.Href)
	}
	etag, err := e.client.PutObject(ctx, old.Href, cal, old.ETag)
	if err != nil {
		res.Err = fmt.Errorf("failed to update item: %w", err)
		return res
	}
	res.Outcome, res.ETag = Updated, etag
	return res
}

// stamp marks target as written now.
func (e *Engine) stamp(target *ical.Component) {
	now := e.now().UTC()
	if target.Props.Get(ical.PropDateTimeStamp) == nil {
		target.Props.SetDateTime(ical.PropDateTimeStamp, now)
	}
	target.Props.SetDateTime(ical.PropLastModified, now)
}
