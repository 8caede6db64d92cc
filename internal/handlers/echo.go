package handlers

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

type ContextInfo struct {
	AwsRequestID    string `json:"aws_request_id"`
	FunctionName    string `json:"function_name"`
	FunctionVersion string `json:"function_version"`
	MemoryLimitInMB int    `json:"memory_limit_in_mb"`
	LogGroupName    string `json:"log_group_name"`
	LogStreamName   string `json:"log_stream_name"`
}

type EchoResponse struct {
	Message       string          `json:"message"`
	ReceivedEvent json.RawMessage `json:"received_event"`
	ContextInfo   ContextInfo     `json:"context_info"`
}

// Echo returns the raw event and invocation metadata. Any trigger works.
func Echo(ctx context.Context, event json.RawMessage) (events.APIGatewayProxyResponse, error) {
	info := ContextInfo{
		FunctionName:    lambdacontext.FunctionName,
		FunctionVersion: lambdacontext.FunctionVersion,
		MemoryLimitInMB: lambdacontext.MemoryLimitInMB,
		LogGroupName:    lambdacontext.LogGroupName,
		LogStreamName:   lambdacontext.LogStreamName,
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		info.AwsRequestID = lc.AwsRequestID
	}
	if len(event) == 0 {
		event = json.RawMessage("null")
	}

	b, err := json.MarshalIndent(EchoResponse{
		Message:       "Event echo response",
		ReceivedEvent: event,
		ContextInfo:   info,
	}, "", "  ")
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{StatusCode: 200, Body: string(b)}, nil
}
