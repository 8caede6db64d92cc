package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/logging"
)

const awsFooterIcon = "https://a0.awsstatic.com/main/images/logos/aws_logo_smile_179x109.png"

// Alarm is the CloudWatch alarm notification published to SNS.
type Alarm struct {
	AlarmName      string `json:"AlarmName"`
	NewStateValue  string `json:"NewStateValue"`
	NewStateReason string `json:"NewStateReason"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type Attachment struct {
	Color      string  `json:"color"`
	Fields     []Field `json:"fields"`
	Footer     string  `json:"footer"`
	FooterIcon string  `json:"footer_icon"`
	Ts         int64   `json:"ts"`
}

type AttachmentMessage struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

func AlarmMessage(a Alarm, now time.Time) AttachmentMessage {
	color := "good"
	if a.NewStateValue == "ALARM" {
		color = "danger"
	}
	return AttachmentMessage{
		Text: "CloudWatch Alarm: " + a.AlarmName,
		Attachments: []Attachment{{
			Color: color,
			Fields: []Field{
				{Title: "Alarm Name", Value: a.AlarmName, Short: true},
				{Title: "State", Value: a.NewStateValue, Short: true},
				{Title: "Reason", Value: a.NewStateReason, Short: false},
			},
			Footer:     "AWS CloudWatch",
			FooterIcon: awsFooterIcon,
			Ts:         now.Unix(),
		}},
	}
}

type AlarmNotifier struct {
	poster Poster
	logger *zap.Logger
	now    func() time.Time
}

func NewAlarmNotifier(poster Poster, logger *zap.Logger) *AlarmNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlarmNotifier{poster: poster, logger: logger, now: time.Now}
}

// Handle forwards the first SNS record's alarm.
func (a *AlarmNotifier) Handle(ctx context.Context, ev events.SNSEvent) (Response, error) {
	log := logging.ForInvocation(ctx, a.logger)

	if len(ev.Records) == 0 || ev.Records[0].SNS.Message == "" {
		return Response{}, apperr.Data("expected SNS event with records", nil)
	}
	var alarm Alarm
	if err := json.Unmarshal([]byte(ev.Records[0].SNS.Message), &alarm); err != nil {
		return Response{}, apperr.Data("decode alarm message", err)
	}

	if err := a.poster.Post(ctx, AlarmMessage(alarm, a.now())); err != nil {
		log.Error("alarm notification failed", zap.String("alarm", alarm.AlarmName), zap.Error(err))
		return Response{}, err
	}
	log.Info("alarm notification sent", zap.String("alarm", alarm.AlarmName), zap.String("state", alarm.NewStateValue))
	return Response{StatusCode: 200, Body: BodySent}, nil
}
