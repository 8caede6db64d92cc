package notify

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"workshop-functions/internal/apperr"
)

func snsEvent(message string) events.SNSEvent {
	return events.SNSEvent{Records: []events.SNSEventRecord{{SNS: events.SNSEntity{Message: message}}}}
}

func TestAlarmMessageColors(t *testing.T) {
	now := time.Unix(1705282200, 0)
	alarm := AlarmMessage(Alarm{AlarmName: "canary-failed", NewStateValue: "ALARM", NewStateReason: "Threshold crossed"}, now)
	assert.Equal(t, "CloudWatch Alarm: canary-failed", alarm.Text)
	require.Len(t, alarm.Attachments, 1)
	assert.Equal(t, "danger", alarm.Attachments[0].Color)
	assert.Equal(t, int64(1705282200), alarm.Attachments[0].Ts)
	assert.Equal(t, "Threshold crossed", alarm.Attachments[0].Fields[2].Value)
	assert.False(t, alarm.Attachments[0].Fields[2].Short)

	ok := AlarmMessage(Alarm{AlarmName: "canary-failed", NewStateValue: "OK"}, now)
	assert.Equal(t, "good", ok.Attachments[0].Color)
}

func TestAlarmNotifierHandle(t *testing.T) {
	poster := &recordingPoster{}
	a := NewAlarmNotifier(poster, nil)

	resp, err := a.Handle(context.Background(), snsEvent(`{"AlarmName":"api-5xx","NewStateValue":"ALARM","NewStateReason":"1 datapoint > 0"}`))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, poster.payloads, 1)
	msg := poster.payloads[0].(AttachmentMessage)
	assert.Equal(t, "api-5xx", msg.Attachments[0].Fields[0].Value)
}

func TestAlarmNotifierRejectsBadEvents(t *testing.T) {
	a := NewAlarmNotifier(&recordingPoster{}, nil)

	_, err := a.Handle(context.Background(), events.SNSEvent{})
	assert.Equal(t, apperr.KindData, apperr.KindOf(err))

	_, err = a.Handle(context.Background(), snsEvent("not json"))
	assert.Equal(t, apperr.KindData, apperr.KindOf(err))
}

type mockPoster struct{ mock.Mock }

func (m *mockPoster) Post(ctx context.Context, payload any) error {
	return m.Called(ctx, payload).Error(0)
}

func TestAlarmNotifierDeliveryFailure(t *testing.T) {
	poster := new(mockPoster)
	poster.On("Post", mock.Anything, mock.MatchedBy(func(p any) bool {
		msg, ok := p.(AttachmentMessage)
		return ok && msg.Attachments[0].Color == "danger"
	})).Return(apperr.Delivery("webhook returned 500", nil)).Once()

	a := NewAlarmNotifier(poster, nil)
	_, err := a.Handle(context.Background(), snsEvent(`{"AlarmName":"canary","NewStateValue":"ALARM"}`))

	require.Error(t, err)
	assert.Equal(t, apperr.KindDelivery, apperr.KindOf(err))
	poster.AssertExpectations(t)
}
