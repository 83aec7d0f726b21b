package rpc

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// callerHeader lets an authenticated relay declare the identity it acts for.
const callerHeader = "X-Loanchain-Caller"

// CallerResolver supplies the effective caller identity for a request before
// the engine's authorization checks run. The engine trusts the resolved value
// as-is, so resolvers are the place to implement relayed (meta-transaction)
// sender semantics.
type CallerResolver interface {
	Resolve(r *http.Request, declared [20]byte) ([20]byte, error)
}

// PassthroughResolver trusts the declared caller unchanged.
type PassthroughResolver struct{}

// Resolve implements CallerResolver.
func (PassthroughResolver) Resolve(_ *http.Request, declared [20]byte) ([20]byte, error) {
	return declared, nil
}

// RelayResolver allows requests carrying the relay bearer token to override
// the declared caller through the X-Loanchain-Caller header. Requests without
// the header behave like PassthroughResolver.
type RelayResolver struct {
	token string
}

// NewRelayResolver builds a resolver accepting overrides authenticated by
// token.
func NewRelayResolver(token string) *RelayResolver {
	return &RelayResolver{token: strings.TrimSpace(token)}
}

// Resolve implements CallerResolver.
func (r *RelayResolver) Resolve(req *http.Request, declared [20]byte) ([20]byte, error) {
	override := strings.TrimSpace(req.Header.Get(callerHeader))
	if override == "" {
		return declared, nil
	}
	if r == nil || r.token == "" {
		return [20]byte{}, fmt.Errorf("caller override requires a configured relay token")
	}
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return [20]byte{}, fmt.Errorf("caller override requires bearer auth")
	}
	presented := strings.TrimSpace(header[len(prefix):])
	if subtle.ConstantTimeCompare([]byte(presented), []byte(r.token)) != 1 {
		return [20]byte{}, fmt.Errorf("caller override rejected")
	}
	return parseAddress(override)
}

func resolverForToken(token string) CallerResolver {
	if strings.TrimSpace(token) == "" {
		return PassthroughResolver{}
	}
	return NewRelayResolver(token)
}
