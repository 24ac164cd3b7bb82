// Package strings provides string manipulation operations as a node
// capability.
package strings

import (
	"context"
	"fmt"
	stdstrings "strings"

	"github.com/wehubfusion/Talaria/pkg/node"
	"github.com/wehubfusion/Talaria/pkg/schema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Node is the strings capability.
type Node struct{}

// New creates the strings node.
func New() *Node {
	return &Node{}
}

// Manifest returns the declarative metadata for the strings node.
func (n *Node) Manifest() node.Manifest {
	valueOnly := map[string]schema.SchemaType{"value": schema.TypeString}

	return node.Manifest{
		Type:        "strings",
		DisplayName: "Strings",
		Category:    "data",
		Operations: []node.Operation{
			{
				Name:        "concatenate",
				DisplayName: "Concatenate",
				Description: "Joins an array of strings with an optional separator",
				RequiredParams: map[string]schema.SchemaType{
					"values": schema.TypeArray,
				},
				OptionalParams: map[string]schema.SchemaType{
					"separator": schema.TypeString,
				},
			},
			{
				Name:        "split",
				DisplayName: "Split",
				Description: "Splits a string on a separator",
				RequiredParams: map[string]schema.SchemaType{
					"value":     schema.TypeString,
					"separator": schema.TypeString,
				},
			},
			{
				Name:        "replace",
				DisplayName: "Replace",
				Description: "Replaces every occurrence of a substring",
				RequiredParams: map[string]schema.SchemaType{
					"value": schema.TypeString,
					"old":   schema.TypeString,
					"new":   schema.TypeString,
				},
			},
			{Name: "trim", DisplayName: "Trim", Description: "Trims surrounding whitespace", RequiredParams: valueOnly},
			{Name: "to_upper", DisplayName: "To Upper", RequiredParams: valueOnly},
			{Name: "to_lower", DisplayName: "To Lower", RequiredParams: valueOnly},
			{Name: "title_case", DisplayName: "Title Case", RequiredParams: valueOnly},
			{Name: "length", DisplayName: "Length", RequiredParams: valueOnly},
			{
				Name:        "contains",
				DisplayName: "Contains",
				RequiredParams: map[string]schema.SchemaType{
					"value":     schema.TypeString,
					"substring": schema.TypeString,
				},
			},
			{
				Name:        "normalize",
				DisplayName: "Normalize",
				Description: "Applies Unicode normalization (NFC, NFD, NFKC or NFKD)",
				RequiredParams: valueOnly,
				OptionalParams: map[string]schema.SchemaType{
					"form": schema.TypeString,
				},
			},
		},
	}
}

// Execute runs one string operation.
func (n *Node) Execute(ctx context.Context, call node.Call) (map[string]interface{}, error) {
	value := call.StringParam("value")

	switch call.Operation {
	case "concatenate":
		values, ok := call.Params["values"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("values must be an array")
		}
		parts := make([]string, 0, len(values))
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("values[%d] is not a string", i)
			}
			parts = append(parts, s)
		}
		return result(stdstrings.Join(parts, call.StringParam("separator"))), nil

	case "split":
		parts := stdstrings.Split(value, call.StringParam("separator"))
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return map[string]interface{}{"result": out}, nil

	case "replace":
		return result(stdstrings.ReplaceAll(value, call.StringParam("old"), call.StringParam("new"))), nil

	case "trim":
		return result(stdstrings.TrimSpace(value)), nil

	case "to_upper":
		return result(stdstrings.ToUpper(value)), nil

	case "to_lower":
		return result(stdstrings.ToLower(value)), nil

	case "title_case":
		return result(cases.Title(language.Und).String(value)), nil

	case "length":
		return map[string]interface{}{"result": len([]rune(value))}, nil

	case "contains":
		return map[string]interface{}{
			"result": stdstrings.Contains(value, call.StringParam("substring")),
		}, nil

	case "normalize":
		form := call.StringParam("form")
		if form == "" {
			form = "NFC"
		}
		normalizer, err := normalizerFor(form)
		if err != nil {
			return nil, err
		}
		return result(normalizer.String(value)), nil
	}

	return nil, node.ErrUnknownOperation(call.Operation)
}

func normalizerFor(form string) (norm.Form, error) {
	switch stdstrings.ToUpper(form) {
	case "NFC":
		return norm.NFC, nil
	case "NFD":
		return norm.NFD, nil
	case "NFKC":
		return norm.NFKC, nil
	case "NFKD":
		return norm.NFKD, nil
	}
	return norm.NFC, fmt.Errorf("unsupported normalization form %q", form)
}

func result(v interface{}) map[string]interface{} {
	return map[string]interface{}{"result": v}
}
