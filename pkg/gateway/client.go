package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	sdkerrors "github.com/wehubfusion/Talaria/pkg/errors"
)

// Client calls a remote gateway over NATS request/reply. Remote errors come
// back as *errors.Error values carrying the server's errorKind, so callers
// branch the same way they would against an in-process gateway.
type Client struct {
	conn    *nats.Conn
	subject string
}

// NewClient creates a gateway client over an established NATS connection.
func NewClient(conn *nats.Conn, subject string) (*Client, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject cannot be empty")
	}
	return &Client{conn: conn, subject: subject}, nil
}

// Call invokes a named tool and returns the raw success payload.
func (c *Client) Call(ctx context.Context, tool string, args map[string]interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(Request{Tool: tool, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	msg, err := c.conn.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *ErrorBody      `json:"error"`
	}
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if resp.Error != nil {
		return nil, sdkerrors.New(sdkerrors.Kind(resp.Error.ErrorKind), resp.Error.Message)
	}
	return resp.Result, nil
}

// CallInto invokes a named tool and decodes the success payload into out.
func (c *Client) CallInto(ctx context.Context, tool string, args map[string]interface{}, out interface{}) error {
	raw, err := c.Call(ctx, tool, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", tool, err)
	}
	return nil
}
