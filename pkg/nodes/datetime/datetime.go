// Package datetime provides date parsing, formatting and arithmetic as a
// node capability.
package datetime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/schema"
)

// Node is the datetime capability.
type Node struct{}

// New creates the datetime node.
func New() *Node {
	return &Node{}
}

// namedLayouts maps friendly layout names to Go time layouts.
var namedLayouts = map[string]string{
	"RFC3339":  time.RFC3339,
	"RFC1123":  time.RFC1123,
	"RFC822":   time.RFC822,
	"DateTime": "2006-01-02 15:04:05",
	"DateOnly": "2006-01-02",
	"TimeOnly": "15:04:05",
	"Kitchen":  time.Kitchen,
	"Unix":     "unix",
}

// Manifest returns the declarative metadata for the datetime node.
func (n *Node) Manifest() node.Manifest {
	return node.Manifest{
		Type:        "datetime",
		DisplayName: "Date & Time",
		Category:    "data",
		Operations: []node.Operation{
			{
				Name:        "now",
				DisplayName: "Now",
				Description: "Returns the current time in the requested layout and timezone",
				OptionalParams: map[string]schema.SchemaType{
					"layout":   schema.TypeString,
					"timezone": schema.TypeString,
				},
			},
			{
				Name:        "format",
				DisplayName: "Format",
				Description: "Re-formats an RFC3339 timestamp into another layout",
				RequiredParams: map[string]schema.SchemaType{
					"value": schema.TypeString,
				},
				OptionalParams: map[string]schema.SchemaType{
					"layout":   schema.TypeString,
					"timezone": schema.TypeString,
				},
			},
			{
				Name:        "add",
				DisplayName: "Add",
				Description: "Adds an amount of time to an RFC3339 timestamp",
				RequiredParams: map[string]schema.SchemaType{
					"value":  schema.TypeString,
					"amount": schema.TypeNumber,
					"unit":   schema.TypeString,
				},
			},
			{
				Name:        "diff",
				DisplayName: "Difference",
				Description: "Returns the difference between two RFC3339 timestamps in the given unit",
				RequiredParams: map[string]schema.SchemaType{
					"start": schema.TypeString,
					"end":   schema.TypeString,
					"unit":  schema.TypeString,
				},
			},
		},
	}
}

// Execute runs one datetime operation.
func (n *Node) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	switch call.Operation {
	case "now":
		location, err := locationFor(call.StringParam("timezone"))
		if err != nil {
			return nil, err
		}
		return formatResult(time.Now().In(location), call.StringParam("layout"))

	case "format":
		parsed, err := parseRFC3339(call.StringParam("value"))
		if err != nil {
			return nil, err
		}
		location, err := locationFor(call.StringParam("timezone"))
		if err != nil {
			return nil, err
		}
		return formatResult(parsed.In(location), call.StringParam("layout"))

	case "add":
		parsed, err := parseRFC3339(call.StringParam("value"))
		if err != nil {
			return nil, err
		}
		amount, ok := call.NumberParam("amount")
		if !ok {
			return nil, fmt.Errorf("amount must be a number")
		}
		unit, err := unitDuration(call.StringParam("unit"))
		if err != nil {
			return nil, err
		}
		shifted := parsed.Add(time.Duration(amount * float64(unit)))
		return map[string]interface{}{"result": shifted.Format(time.RFC3339)}, nil

	case "diff":
		start, err := parseRFC3339(call.StringParam("start"))
		if err != nil {
			return nil, err
		}
		end, err := parseRFC3339(call.StringParam("end"))
		if err != nil {
			return nil, err
		}
		unit, err := unitDuration(call.StringParam("unit"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"result": float64(end.Sub(start)) / float64(unit),
		}, nil
	}

	return nil, node.ErrUnknownOperation(call.Operation)
}

func parseRFC3339(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("value %q is not an RFC3339 timestamp: %w", value, err)
	}
	return parsed, nil
}

func locationFor(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return location, nil
}

func formatResult(t time.Time, layout string) (map[string]interface{}, error) {
	resolved, err := layoutFor(layout)
	if err != nil {
		return nil, err
	}
	if resolved == "unix" {
		return map[string]interface{}{"result": t.Unix()}, nil
	}
	return map[string]interface{}{"result": t.Format(resolved)}, nil
}

// layoutFor resolves a friendly layout name, falling back to treating the
// value as a raw Go layout string.
func layoutFor(layout string) (string, error) {
	if layout == "" {
		return time.RFC3339, nil
	}
	if named, ok := namedLayouts[layout]; ok {
		return named, nil
	}
	if strings.ContainsAny(layout, "0123456789") {
		return layout, nil
	}
	return "", fmt.Errorf("unknown layout %q", layout)
}

func unitDuration(unit string) (time.Duration, error) {
	switch strings.ToLower(unit) {
	case "seconds":
		return time.Second, nil
	case "minutes":
		return time.Minute, nil
	case "hours":
		return time.Hour, nil
	case "days":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported unit %q (use seconds, minutes, hours or days)", unit)
}
