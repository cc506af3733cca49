package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/export"
	"github.com/sewik-mapa/sewikmapa/internal/session"
)

// Job types accepted in messages.
const (
	JobPrewarm     = "prewarm"
	JobExport      = "export"
	JobHealthCheck = "health_check"
)

// ErrUnknownJob is returned by Dispatch for job types it does not handle.
var ErrUnknownJob = errors.New("unknown job type")

// Message is the JSON body of a worker message.
type Message struct {
	JobType string `json:"job_type"`
	// Query is a state query string. For prewarm it overrides the configured
	// selection; for export it is required.
	Query string `json:"query,omitempty"`
}

// Dispatcher runs the job named by a message.
type Dispatcher struct {
	data    Dataset
	prewarm *PrewarmJob
	export  *ExportJob
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher. export may be nil, in which case
// export messages fail.
func NewDispatcher(data Dataset, prewarm *PrewarmJob, exportJob *ExportJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{data: data, prewarm: prewarm, export: exportJob, logger: logger}
}

// Dispatch parses data and runs its job.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) (string, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("parsing message: %w", err)
	}

	switch msg.JobType {
	case JobPrewarm:
		return msg.JobType, d.handlePrewarm(ctx, msg)
	case JobExport:
		return msg.JobType, d.handleExport(ctx, msg)
	case JobHealthCheck:
		return msg.JobType, d.handleHealthCheck(ctx)
	default:
		return msg.JobType, fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (d *Dispatcher) handlePrewarm(ctx context.Context, msg Message) error {
	var result *PrewarmResult
	if msg.Query != "" {
		state := session.RestoreState(msg.Query, d.data.Metadata())
		result = d.prewarm.RunSelection(ctx, dataset.NewSelection(state.Years, state.Regions))
	} else {
		result = d.prewarm.Run(ctx)
	}

	if result.Canceled {
		return fmt.Errorf("prewarm interrupted after %d partitions", result.Partitions)
	}
	if len(result.Failed) > result.Partitions {
		return fmt.Errorf("too many prewarm failures: %d/%d", len(result.Failed), len(result.Failed)+result.Partitions)
	}
	return nil
}

func (d *Dispatcher) handleExport(ctx context.Context, msg Message) error {
	if d.export == nil {
		return errors.New("export job not configured")
	}
	if msg.Query == "" {
		return errors.New("export message without query")
	}
	_, err := d.export.Run(ctx, msg.Query)
	if errors.Is(err, export.ErrNothingToExport) {
		d.logger.Info().Str("query", msg.Query).Msg("nothing to export")
		return nil
	}
	return err
}

// handleHealthCheck loads the first partition of the latest year to verify
// source connectivity.
func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	meta := d.data.Metadata()
	year, ok := meta.LatestYear()
	if !ok || len(meta.Regions) == 0 {
		return errors.New("no partitions to probe")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ws, err := d.data.Load(ctx, dataset.NewSelection([]int{year}, meta.Regions[:1]))
	if err != nil {
		return err
	}
	if len(ws.Failed()) > 0 {
		return fmt.Errorf("health check failed: %s unavailable", ws.Failed()[0])
	}
	return nil
}

// PubSubHandler feeds Pub/Sub messages to a Dispatcher.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Prewarm and export runs are long; keep few in flight.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.process(ctx, msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// process runs one message and reports whether it should be acked.
// Unknown and unparsable messages are acked so they are not redelivered.
func (h *PubSubHandler) process(ctx context.Context, id string, data []byte) bool {
	return handle(ctx, h.dispatcher, h.logger.With().Str("message_id", id).Logger(), data)
}

func handle(ctx context.Context, d *Dispatcher, logger zerolog.Logger, data []byte) bool {
	startTime := time.Now()
	logger.Debug().Msg("received message")

	jobType, err := d.Dispatch(ctx, data)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", jobType).Msg("unknown job type")
		return true
	case err != nil && jobType == "":
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	case err != nil:
		logger.Error().Err(err).Str("job_type", jobType).Msg("job failed")
		return false
	}

	logger.Info().
		Str("job_type", jobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}
