// Package audit writes a structured trail of engine activity: every applied
// or ignored event and the lifecycle of whole runs.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"payflux.org/internal/engine"
	"payflux.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// LogOutcome records the fate of one transaction event.
func LogOutcome(ctx context.Context, tx engine.Transaction, out engine.Outcome) {
	fields := map[string]any{
		"kind":   tx.Kind.String(),
		"client": tx.Client,
		"tx":     tx.TX,
	}
	event := "engine.tx.applied"
	if !out.Applied {
		event = "engine.tx.ignored"
		fields["reason"] = string(out.Reason)
	}
	_ = LogEvent(ctx, event, fields)
}
