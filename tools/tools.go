//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run with `go run` at a pinned version and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - gomock code generator for internal/mocks
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0
//   Docs: https://github.com/uber-go/mock
