package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	stripeapi "github.com/stripe/stripe-go/v74"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/inkwell/paywall/internal/app/service/event_handler"
	"github.com/inkwell/paywall/internal/app/service/event_log"
	"github.com/inkwell/paywall/internal/models"
)

// jobResults tracks reconcile job outcomes so permanently-failing events are
// observable even though the provider was already acknowledged.
var jobResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reconcile_jobs_total",
	Help: "Billing event reconcile jobs partitioned by event type and result.",
}, []string{"type", "result"})

const queueSize = 256

// Job is one acknowledged webhook event awaiting reconciliation.
type Job struct {
	Event   stripeapi.Event
	TraceID string
}

// Dispatcher decouples webhook acknowledgement from reconciliation: the
// ingress handler enqueues and returns, a single worker drains the queue.
// Enqueue never blocks the ack path.
type Dispatcher struct {
	jobs    chan Job
	handler *event_handler.EventHandler
	evlog   *event_log.Service
	log     *zap.SugaredLogger
	done    chan struct{}
}

func New(handler *event_handler.EventHandler, evlog *event_log.Service, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		jobs:    make(chan Job, queueSize),
		handler: handler,
		evlog:   evlog,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Enqueue hands an event to the worker. A full queue drops the job (counted
// and logged); the provider's own redelivery is the recovery path.
func (d *Dispatcher) Enqueue(job Job) bool {
	select {
	case d.jobs <- job:
		return true
	default:
		jobResults.WithLabelValues(string(job.Event.Type), "dropped").Inc()
		d.log.Errorw("reconcile_queue_full", "event_id", job.Event.ID, "type", job.Event.Type)
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for job := range d.jobs {
		d.process(job)
	}
}

func (d *Dispatcher) process(job Job) {
	ctx := context.WithValue(context.Background(), "traceID", job.TraceID)

	err := d.handler.HandleEvent(ctx, job.Event)

	result := "handled"
	status := models.BillingEventLogStatusHandled
	resMap := map[string]any{}
	if err != nil {
		result = "failed"
		status = models.BillingEventLogStatusHandleFailed
		resMap["error"] = err.Error()
		d.log.Errorw("reconcile_job_failed", "event_id", job.Event.ID, "type", job.Event.Type, "err", err)
	}
	jobResults.WithLabelValues(string(job.Event.Type), result).Inc()

	resBytes, _ := json.Marshal(resMap)
	d.evlog.Save(ctx, &models.BillingEventLog{
		EventID:   job.Event.ID,
		EventType: string(job.Event.Type),
		TraceID:   job.TraceID,
		EventTime: time.Unix(job.Event.Created, 0),
		Data:      datatypes.JSON(job.Event.Data.Raw),
		Result:    func() *datatypes.JSON { j := datatypes.JSON(resBytes); return &j }(),
		Status:    status,
	})
}

func runWorker(lc fx.Lifecycle, d *Dispatcher, log *zap.SugaredLogger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("reconcile worker started", "queue_size", queueSize)
			go d.run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(d.jobs)
			select {
			case <-d.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(runWorker),
)
