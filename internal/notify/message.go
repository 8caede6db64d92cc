package notify

import (
	"fmt"
	"strings"
)

// Links builds console deep links for one region.
type Links struct {
	Region   string
	LogGroup string
}

func (l Links) LogEvents(stream string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/cloudwatch/home?region=%s#logsV2:log-groups/log-group/%s/log-events/%s",
		l.Region, l.Region, l.LogGroup, stream)
}

func (l Links) ServiceTasks(cluster, service string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/ecs/v2/clusters/%s/services/%s/tasks?region=%s",
		l.Region, cluster, service, l.Region)
}

// FormatStopMessage renders the Slack mrkdwn text for one stopped task.
func FormatStopMessage(d TaskStateChange, info TaskInfo, logStream string, links Links) string {
	var reasons []string
	for _, c := range d.Containers {
		if c.Reason != "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", c.Name, c.Reason))
		}
	}

	var b strings.Builder
	b.WriteString("*ECS task stopped*\n```\n")
	fmt.Fprintf(&b, "Task definition: %s\n", d.TaskDefinitionArn)
	fmt.Fprintf(&b, "Stopped reason: %s\n", d.StoppedReason)
	if len(reasons) > 0 {
		fmt.Fprintf(&b, "Container reasons: %s\n", strings.Join(reasons, ", "))
	}
	b.WriteString("```\n")
	fmt.Fprintf(&b, "<%s|CloudWatch Logs>", links.LogEvents(logStream))
	if info.ServiceName != "" {
		fmt.Fprintf(&b, "  <%s|ECS service>", links.ServiceTasks(info.ClusterName, info.ServiceName))
	}
	return b.String()
}
