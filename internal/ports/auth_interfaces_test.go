package ports_test

import (
	"testing"

	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/backend"
	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/devauth"
	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/gotrue"
	"github.com/skoruppa/NuvioTV-sub003/internal/adapters/memory"
	redisadapter "github.com/skoruppa/NuvioTV-sub003/internal/adapters/redis"
	"github.com/skoruppa/NuvioTV-sub003/internal/mocks"
	mockauth "github.com/skoruppa/NuvioTV-sub003/internal/mocks/auth"
	"github.com/skoruppa/NuvioTV-sub003/internal/ports"
)

// This test only verifies that adapters and mocks conform to the ports at compile time.
func TestImplementationsSatisfyPorts(t *testing.T) {
	t.Helper()

	var _ ports.IdentityProvider = (*gotrue.Provider)(nil)
	var _ ports.IdentityProvider = (*devauth.Provider)(nil)
	var _ ports.IdentityProvider = (*mockauth.FakeIdentityProvider)(nil)
	var _ ports.SessionStore = (*memory.SessionStore)(nil)
	var _ ports.SessionStore = (*redisadapter.SessionStore)(nil)
	var _ ports.RPCClient = (*backend.RPCClient)(nil)
	var _ ports.RPCClient = (*mocks.MockRPCClient)(nil)
	var _ ports.FunctionInvoker = (*backend.FunctionClient)(nil)
	var _ ports.FunctionInvoker = (*mockauth.StubFunctionInvoker)(nil)
}

func TestFunctionResponse_OK(t *testing.T) {
	cases := map[int]bool{199: false, 200: true, 204: true, 299: true, 300: false, 410: false}
	for status, want := range cases {
		if got := (ports.FunctionResponse{StatusCode: status}).OK(); got != want {
			t.Errorf("status %d: OK() = %v, want %v", status, got, want)
		}
	}
}
