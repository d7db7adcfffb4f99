package worker

import (
	"context"
	"fmt"
	"time"

	"modelhub-backend/internal/services"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func healthCheck(deps Deps) HandlerFunc {
	return func(ctx context.Context, e *Execution) (interface{}, error) {
		var components []string
		for _, c := range e.ListArg(0, "components") {
			components = append(components, fmt.Sprint(c))
		}
		if len(components) == 0 {
			components = services.DefaultHealthComponents
		}

		results := make(map[string]services.ComponentHealth, len(components))
		healthy := 0
		for i, c := range components {
			res := deps.Health.Check(ctx, c)
			results[c] = res
			if res.Healthy() {
				healthy++
			}
			e.UpdateProgress((i+1)*100/len(components), map[string]interface{}{"component": c, "status": res.Status})
		}

		return map[string]interface{}{
			"success":              healthy == len(components),
			"components":           results,
			"total_components":     len(components),
			"healthy_components":   healthy,
			"unhealthy_components": len(components) - healthy,
		}, nil
	}
}

var alertSteps = []string{
	"record alert",
	"notify administrators",
	"assess impact",
	"apply mitigation",
	"update monitoring",
}

var alertSeverities = map[string]bool{"critical": true, "high": true, "medium": true, "low": true}

// emergencyAlert walks the alert through its handling steps, reporting
// progress per step. Administrators are notified through the webhook when
// one is configured.
func emergencyAlert(deps Deps) HandlerFunc {
	return func(ctx context.Context, e *Execution) (interface{}, error) {
		alertType := e.StringArg(0, "alert_type", "")
		message := e.StringArg(1, "message", "")
		severity := e.StringArg(2, "severity", "critical")
		if alertType == "" || message == "" {
			return nil, fmt.Errorf("alert_type and message are required: %w", asynq.SkipRetry)
		}
		if !alertSeverities[severity] {
			return nil, fmt.Errorf("unknown severity %q: %w", severity, asynq.SkipRetry)
		}
		affected := []string{}
		for _, c := range e.ListArg(3, "affected_components") {
			affected = append(affected, fmt.Sprint(c))
		}

		alert := map[string]interface{}{
			"alert_type":          alertType,
			"message":             message,
			"severity":            severity,
			"affected_components": affected,
			"alert_time":          e.runner.now().UTC().Format(time.RFC3339),
		}
		e.log.Warn("emergency alert",
			zap.String("alert_type", alertType),
			zap.String("severity", severity),
			zap.String("message", message),
			zap.Strings("affected_components", affected))

		notified := false
		for i, step := range alertSteps {
			if i == 1 && deps.WebhookURL != "" {
				if err := postWebhook(ctx, deps, alert); err != nil {
					return nil, err
				}
				notified = true
			}
			e.UpdateProgress((i+1)*100/len(alertSteps), map[string]interface{}{
				"message": "alert step: " + step,
			})
			if err := sleepCtx(ctx, deps.Step); err != nil {
				return nil, err
			}
		}

		alert["success"] = true
		alert["notified"] = notified
		alert["resolution"] = "alert handled, mitigation applied"
		return alert, nil
	}
}
