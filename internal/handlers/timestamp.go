package handlers

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

const tokyo = "Asia/Tokyo"

type TimestampResponse struct {
	Timestamp string `json:"timestamp"`
	Timezone  string `json:"timezone"`
	Formatted string `json:"formatted"`
	UnixTime  int64  `json:"unix_time"`
}

// Timestamp reports the current time in Japan Standard Time.
type Timestamp struct {
	Now func() time.Time
	loc *time.Location
}

func NewTimestamp() (*Timestamp, error) {
	loc, err := time.LoadLocation(tokyo)
	if err != nil {
		return nil, err
	}
	return &Timestamp{Now: time.Now, loc: loc}, nil
}

func (h *Timestamp) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	now := h.Now().In(h.loc)
	return jsonResp(200, TimestampResponse{
		Timestamp: now.Format("2006-01-02T15:04:05.000000-07:00"),
		Timezone:  tokyo + " (JST)",
		Formatted: now.Format("2006-01-02 15:04:05 MST"),
		UnixTime:  now.Unix(),
	})
}
