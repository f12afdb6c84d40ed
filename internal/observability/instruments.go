package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/Additional-Code/orderdesk"

// Instruments are the order desk's metrics. Every method is safe on the value
// returned for a disabled meter provider.
type Instruments struct {
	pageLoads      metric.Int64Counter
	fetchFailures  metric.Int64Counter
	superseded     metric.Int64Counter
	deskActions    metric.Int64Counter
	deskSessions   metric.Int64UpDownCounter
	ordersCreated  metric.Int64Counter
	transitions    metric.Int64Counter
	pageCacheReads metric.Int64Counter
}

var discardInstruments = mustInstruments(noop.NewMeterProvider().Meter(instrumentationName))

func mustInstruments(meter metric.Meter) *Instruments {
	inst, err := newInstruments(meter)
	if err != nil {
		panic(err)
	}
	return inst
}

func newInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		inst Instruments
		err  error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&inst.pageLoads, "desk.page_loads", "Order pages loaded into a desk"},
		{&inst.fetchFailures, "desk.fetch_failures", "Order page fetches that failed and kept the previous page"},
		{&inst.superseded, "desk.superseded_responses", "Page responses discarded because a newer request was issued"},
		{&inst.deskActions, "desk.order_actions", "Order mutations requested from a desk"},
		{&inst.ordersCreated, "orders.created", "Orders accepted by the order service"},
		{&inst.transitions, "orders.status_transitions", "Order status changes applied by the order service"},
		{&inst.pageCacheReads, "orders.page_cache_reads", "Order page cache lookups"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}
	inst.deskSessions, err = meter.Int64UpDownCounter("desk.sessions",
		metric.WithDescription("Open desk sessions"))
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (i *Instruments) DeskPageLoaded(ctx context.Context) {
	i.pageLoads.Add(ctx, 1)
}

func (i *Instruments) DeskFetchFailed(ctx context.Context) {
	i.fetchFailures.Add(ctx, 1)
}

func (i *Instruments) DeskResponseSuperseded(ctx context.Context) {
	i.superseded.Add(ctx, 1)
}

func (i *Instruments) DeskAction(ctx context.Context, action string, ok bool) {
	i.deskActions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("success", ok),
	))
}

// DeskSessions moves the open-session gauge by delta.
func (i *Instruments) DeskSessions(ctx context.Context, delta int) {
	if delta != 0 {
		i.deskSessions.Add(ctx, int64(delta))
	}
}

func (i *Instruments) OrderCreated(ctx context.Context) {
	i.ordersCreated.Add(ctx, 1)
}

func (i *Instruments) OrderTransition(ctx context.Context, from, to string) {
	i.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (i *Instruments) PageCacheRead(ctx context.Context, hit bool) {
	i.pageCacheReads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}
