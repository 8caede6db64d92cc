// Package notify turns ECS task-stop log events and CloudWatch alarms into
// chat webhook messages.
package notify

import (
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"workshop-functions/internal/apperr"
)

// Response is the fixed-shape result returned to the platform.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type Container struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// TaskStateChange is the subset of the ECS Task State Change detail we read.
type TaskStateChange struct {
	TaskDefinitionArn string      `json:"taskDefinitionArn"`
	ClusterArn        string      `json:"clusterArn"`
	Group             string      `json:"group"`
	StoppedReason     string      `json:"stoppedReason"`
	LastStatus        string      `json:"lastStatus"`
	Containers        []Container `json:"containers"`
}

// envelope is the EventBridge event stored as each log message.
type envelope struct {
	TaskDefinitionArn string          `json:"taskDefinitionArn"`
	Detail            TaskStateChange `json:"detail"`
}

type TaskInfo struct {
	TaskDefinitionArn string
	ClusterName       string
	ServiceName       string
}

// Decode unpacks the base64 gzip subscription payload.
func Decode(ev events.CloudwatchLogsEvent) (events.CloudwatchLogsData, error) {
	data, err := ev.AWSLogs.Parse()
	if err != nil {
		return events.CloudwatchLogsData{}, apperr.Data("decode cloudwatch logs payload", err)
	}
	return data, nil
}

// ParseDetail reads the task state change out of one log message.
func ParseDetail(message string) (TaskStateChange, error) {
	var env envelope
	if err := json.Unmarshal([]byte(message), &env); err != nil {
		return TaskStateChange{}, apperr.Data("decode log message", err)
	}
	return env.Detail, nil
}

// taskDefinitionOf accepts the ARN at the top level or under detail.
func taskDefinitionOf(message string) string {
	var env envelope
	if err := json.Unmarshal([]byte(message), &env); err != nil {
		return ""
	}
	if env.TaskDefinitionArn != "" {
		return env.TaskDefinitionArn
	}
	return env.Detail.TaskDefinitionArn
}

func ExtractTaskInfo(d TaskStateChange) TaskInfo {
	info := TaskInfo{TaskDefinitionArn: d.TaskDefinitionArn}
	if i := strings.LastIndex(d.ClusterArn, "/"); i >= 0 {
		info.ClusterName = d.ClusterArn[i+1:]
	} else {
		info.ClusterName = d.ClusterArn
	}
	if name, ok := strings.CutPrefix(d.Group, "service:"); ok {
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		info.ServiceName = name
	}
	return info
}
