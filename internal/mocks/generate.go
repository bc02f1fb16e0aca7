// Package mocks provides generated mock implementations for testing the identity layer.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	rpc := mocks.NewMockRPCClient(ctrl)
//	rpc.EXPECT().Call(gomock.Any(), "get_sync_owner", gomock.Any()).Return(json.RawMessage(`"owner"`), nil)
package mocks

// Generate mock for RPCClient interface from internal/ports package.
// This creates MockRPCClient with methods for all RPCClient interface methods:
// Call
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rpc_client_mock.go github.com/skoruppa/NuvioTV-sub003/internal/ports RPCClient
