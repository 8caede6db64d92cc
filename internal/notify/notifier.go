package notify

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"workshop-functions/internal/config"
	"workshop-functions/internal/logging"
)

const (
	BodySent    = "notification sent"
	BodySkipped = "notification skipped"
)

// Poster delivers a JSON payload to the chat webhook.
type Poster interface {
	Post(ctx context.Context, payload any) error
}

type TextMessage struct {
	Text string `json:"text"`
}

type Notifier struct {
	cfg     *config.Notifier
	history History
	poster  Poster
	links   Links
	logger  *zap.Logger
}

func NewNotifier(cfg *config.Notifier, history History, poster Poster, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		cfg:     cfg,
		history: history,
		poster:  poster,
		links:   Links{Region: cfg.Region, LogGroup: cfg.LogGroupName},
		logger:  logger,
	}
}

// Handle posts one message per stopped task. A suppressed event ends the
// invocation early. Delivery failures are returned so the platform retries.
func (n *Notifier) Handle(ctx context.Context, ev events.CloudwatchLogsEvent) (Response, error) {
	log := logging.ForInvocation(ctx, n.logger)

	data, err := Decode(ev)
	if err != nil {
		log.Error("invalid log payload", zap.Error(err))
		return Response{}, err
	}
	log.Info("received log events", zap.String("log_group", data.LogGroup),
		zap.String("log_stream", data.LogStream), zap.Int("events", len(data.LogEvents)))

	for _, le := range data.LogEvents {
		detail, err := ParseDetail(le.Message)
		if err != nil {
			log.Error("invalid log event", zap.String("id", le.ID), zap.Error(err))
			return Response{}, err
		}
		info := ExtractTaskInfo(detail)

		if n.skippable(ctx, log, info.TaskDefinitionArn, le.Timestamp) {
			return Response{StatusCode: 200, Body: BodySkipped}, nil
		}

		text := FormatStopMessage(detail, info, data.LogStream, n.links)
		if err := n.poster.Post(ctx, TextMessage{Text: text}); err != nil {
			log.Error("slack notification failed", zap.String("task_definition", info.TaskDefinitionArn), zap.Error(err))
			return Response{}, err
		}
		log.Info("slack notification sent", zap.String("task_definition", info.TaskDefinitionArn),
			zap.String("cluster", info.ClusterName), zap.String("service", info.ServiceName))
	}
	return Response{StatusCode: 200, Body: BodySent}, nil
}

// skippable is best-effort: a failed lookup never suppresses.
func (n *Notifier) skippable(ctx context.Context, log *zap.Logger, taskDef string, current int64) bool {
	if !n.cfg.SuppressionEnabled() || n.history == nil {
		return false
	}
	prev, ok, err := n.history.Previous(ctx)
	if err != nil {
		log.Warn("previous event lookup failed", zap.Error(err))
		return false
	}
	if !ok || prev.TaskDefinitionArn == "" || prev.TaskDefinitionArn != taskDef {
		return false
	}
	elapsed := time.Duration(current-prev.Timestamp) * time.Millisecond
	if elapsed > n.cfg.SuppressWindow {
		return false
	}
	log.Info("same task definition stopped again within window, skipping notification",
		zap.String("task_definition", taskDef), zap.Duration("elapsed", elapsed), zap.Duration("window", n.cfg.SuppressWindow))
	return true
}
