package ports

import (
	"context"
	"encoding/json"
)

// RPCClient calls remote procedures on the data backend with JSON in/out.
type RPCClient interface {
	// Call invokes fn with params (marshalled to a JSON object) and returns the raw result.
	Call(ctx context.Context, fn string, params any) (json.RawMessage, error)
}

// FunctionResponse is the raw outcome of a backend function invocation.
type FunctionResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r FunctionResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// FunctionInvoker issues one authenticated POST to a named backend function.
// Non-2xx statuses are returned as responses, not errors; err is reserved for transport failures.
type FunctionInvoker interface {
	Invoke(ctx context.Context, name, bearer string, payload any) (FunctionResponse, error)
}
