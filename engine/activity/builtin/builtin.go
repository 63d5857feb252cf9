// Package builtin provides default activity handlers for the built-in step
// types. Hosts can override any of them by registering their own handler
// under the same name before calling RegisterAll.
package builtin

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/opsai/opsflow/engine/activity"
	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/infra/store"
	"github.com/opsai/opsflow/pkg/logger"
)

// RegisterAll wires the default handlers. db may be nil; database_update is
// then registered as unavailable and fails permanently when used.
func RegisterAll(registry *activity.Registry, db store.DBInterface) error {
	if err := registry.Register("api_call", APICall(nil)); err != nil {
		return err
	}
	if err := registry.Register("notification", Notification()); err != nil {
		return err
	}
	return registry.Register("database_update", DatabaseUpdate(db))
}

// -----------------------------------------------------------------------------
// api_call
// -----------------------------------------------------------------------------

// APICall performs an HTTP request described by the step config:
//
//	url:     request URL (required)
//	method:  HTTP method, default GET
//	headers: map of header values
//	body:    JSON request body
//
// Network errors and 5xx responses are transient; 4xx responses are permanent.
func APICall(client *resty.Client) activity.Handler {
	if client == nil {
		client = resty.New().SetTimeout(30 * time.Second)
	}
	return func(ctx context.Context, config map[string]any, _ map[string]any) (core.Output, error) {
		url, _ := config["url"].(string)
		if url == "" {
			return nil, activity.Permanent(fmt.Errorf("api_call requires a url"))
		}
		method, _ := config["method"].(string)
		if method == "" {
			method = http.MethodGet
		}

		req := client.R().SetContext(ctx)
		if headers, ok := config["headers"].(map[string]any); ok {
			for k, v := range headers {
				req.SetHeader(k, fmt.Sprintf("%v", v))
			}
		}
		if body, ok := config["body"]; ok {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}

		resp, err := req.Execute(strings.ToUpper(method), url)
		if err != nil {
			return nil, activity.Transientf("api_call to %s: %w", url, err)
		}
		output := core.Output{
			"status_code": resp.StatusCode(),
			"body":        string(resp.Body()),
		}
		switch {
		case resp.StatusCode() >= 500:
			return output, activity.Transientf("api_call to %s: server returned %d", url, resp.StatusCode())
		case resp.StatusCode() >= 400:
			return output, activity.Permanentf("api_call to %s: server returned %d", url, resp.StatusCode())
		}
		return output, nil
	}
}

// -----------------------------------------------------------------------------
// notification
// -----------------------------------------------------------------------------

// Notification logs the message and reports it as sent. Real delivery
// channels are host concerns registered over this default.
func Notification() activity.Handler {
	return func(ctx context.Context, config map[string]any, _ map[string]any) (core.Output, error) {
		recipient, _ := config["to"].(string)
		subject, _ := config["subject"].(string)
		logger.FromContext(ctx).Info("notification dispatched",
			"to", recipient, "subject", subject)
		return core.Output{"sent": true, "to": recipient}, nil
	}
}

// -----------------------------------------------------------------------------
// database_update
// -----------------------------------------------------------------------------

// DatabaseUpdate runs an UPDATE built from the step config:
//
//	table: target table (required)
//	set:   map of column -> value (required)
//	where: map of column -> value
//
// Connection faults are transient; malformed config is permanent.
func DatabaseUpdate(db store.DBInterface) activity.Handler {
	return func(ctx context.Context, config map[string]any, _ map[string]any) (core.Output, error) {
		if db == nil {
			return nil, activity.Permanent(fmt.Errorf("database_update requires a database-backed deployment"))
		}
		table, _ := config["table"].(string)
		if table == "" {
			return nil, activity.Permanent(fmt.Errorf("database_update requires a table"))
		}
		set, ok := config["set"].(map[string]any)
		if !ok || len(set) == 0 {
			return nil, activity.Permanent(fmt.Errorf("database_update requires a set clause"))
		}
		query, args, err := store.BuildUpdate(table, set, asMap(config["where"]))
		if err != nil {
			return nil, activity.Permanent(fmt.Errorf("database_update: %w", err))
		}
		tag, err := db.Exec(ctx, query, args...)
		if err != nil {
			return nil, activity.Transientf("database_update on %s: %w", table, err)
		}
		return core.Output{"success": true, "rows_affected": tag.RowsAffected()}, nil
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
