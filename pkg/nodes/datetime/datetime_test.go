package datetime_test

import (
	"context"
	"testing"
	"time"

	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/nodes/datetime"
)

func run(t *testing.T, operation string, params map[string]interface{}) map[string]interface{} {
	t.Helper()
	out, err := datetime.New().Execute(context.Background(), node.Call{
		Operation: operation,
		Params:    params,
	})
	if err != nil {
		t.Fatalf("%s failed: %v", operation, err)
	}
	return out
}

func TestDatetimeOperations(t *testing.T) {
	t.Run("now default layout", func(t *testing.T) {
		out := run(t, "now", map[string]interface{}{})
		if _, err := time.Parse(time.RFC3339, out["result"].(string)); err != nil {
			t.Errorf("now should produce RFC3339 by default: %v", err)
		}
	})

	t.Run("format with named layout", func(t *testing.T) {
		out := run(t, "format", map[string]interface{}{
			"value":  "2026-08-24T10:30:00Z",
			"layout": "DateOnly",
		})
		if out["result"] != "2026-08-24" {
			t.Errorf("expected 2026-08-24, got %v", out["result"])
		}
	})

	t.Run("format to unix", func(t *testing.T) {
		out := run(t, "format", map[string]interface{}{
			"value":  "1970-01-01T00:01:00Z",
			"layout": "Unix",
		})
		if out["result"] != int64(60) {
			t.Errorf("expected 60, got %v", out["result"])
		}
	})

	t.Run("format with timezone", func(t *testing.T) {
		out := run(t, "format", map[string]interface{}{
			"value":    "2026-08-24T12:00:00Z",
			"timezone": "America/New_York",
			"layout":   "TimeOnly",
		})
		if out["result"] != "08:00:00" {
			t.Errorf("expected 08:00:00, got %v", out["result"])
		}
	})

	t.Run("invalid timestamp rejected", func(t *testing.T) {
		_, err := datetime.New().Execute(context.Background(), node.Call{
			Operation: "format",
			Params:    map[string]interface{}{"value": "yesterday"},
		})
		if err == nil {
			t.Fatal("expected error for non-RFC3339 value")
		}
	})

	t.Run("unknown layout rejected", func(t *testing.T) {
		_, err := datetime.New().Execute(context.Background(), node.Call{
			Operation: "format",
			Params:    map[string]interface{}{"value": "2026-08-24T10:30:00Z", "layout": "Fancy"},
		})
		if err == nil {
			t.Fatal("expected error for unknown layout")
		}
	})

	t.Run("add hours", func(t *testing.T) {
		out := run(t, "add", map[string]interface{}{
			"value":  "2026-08-24T10:00:00Z",
			"amount": float64(3),
			"unit":   "hours",
		})
		if out["result"] != "2026-08-24T13:00:00Z" {
			t.Errorf("expected 13:00, got %v", out["result"])
		}
	})

	t.Run("add negative days", func(t *testing.T) {
		out := run(t, "add", map[string]interface{}{
			"value":  "2026-08-24T10:00:00Z",
			"amount": float64(-1),
			"unit":   "days",
		})
		if out["result"] != "2026-08-23T10:00:00Z" {
			t.Errorf("expected previous day, got %v", out["result"])
		}
	})

	t.Run("diff", func(t *testing.T) {
		out := run(t, "diff", map[string]interface{}{
			"start": "2026-08-24T10:00:00Z",
			"end":   "2026-08-24T11:30:00Z",
			"unit":  "minutes",
		})
		if out["result"] != float64(90) {
			t.Errorf("expected 90 minutes, got %v", out["result"])
		}
	})

	t.Run("unsupported unit rejected", func(t *testing.T) {
		_, err := datetime.New().Execute(context.Background(), node.Call{
			Operation: "add",
			Params: map[string]interface{}{
				"value": "2026-08-24T10:00:00Z", "amount": float64(1), "unit": "fortnights",
			},
		})
		if err == nil {
			t.Fatal("expected error for unsupported unit")
		}
	})
}
