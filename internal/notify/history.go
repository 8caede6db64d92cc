package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// Previous is the last event seen before the current one.
type Previous struct {
	TaskDefinitionArn string
	Timestamp         int64 // epoch milliseconds
}

// History answers "what stopped last time". ok is false when there is nothing to compare.
type History interface {
	Previous(ctx context.Context) (prev Previous, ok bool, err error)
}

type LogsClient interface {
	DescribeLogStreams(ctx context.Context, params *cloudwatchlogs.DescribeLogStreamsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

var _ LogsClient = (*cloudwatchlogs.Client)(nil)

// LogHistory reads the last event of the second most recent stream in a log group.
// The most recent stream holds the event being processed.
type LogHistory struct {
	client LogsClient
	group  string
}

func NewLogHistory(client LogsClient, group string) *LogHistory {
	return &LogHistory{client: client, group: group}
}

func (h *LogHistory) Previous(ctx context.Context) (Previous, bool, error) {
	streams, err := h.client.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(h.group),
		OrderBy:      cwltypes.OrderByLastEventTime,
		Descending:   aws.Bool(true),
		Limit:        aws.Int32(2),
	})
	if err != nil {
		return Previous{}, false, fmt.Errorf("describe log streams %s: %w", h.group, err)
	}
	if len(streams.LogStreams) < 2 {
		return Previous{}, false, nil
	}

	out, err := h.client.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(h.group),
		LogStreamName: streams.LogStreams[1].LogStreamName,
		Limit:         aws.Int32(1),
		StartFromHead: aws.Bool(false),
	})
	if err != nil {
		return Previous{}, false, fmt.Errorf("get log events %s: %w", aws.ToString(streams.LogStreams[1].LogStreamName), err)
	}
	if len(out.Events) == 0 {
		return Previous{}, false, nil
	}

	ev := out.Events[len(out.Events)-1]
	return Previous{
		TaskDefinitionArn: taskDefinitionOf(aws.ToString(ev.Message)),
		Timestamp:         aws.ToInt64(ev.Timestamp),
	}, true, nil
}
