// Package contract holds the error kinds shared by the router, the gateway and
// the HTTP surface.
package contract

import "errors"

var (
	ErrBadRequest      = errors.New("bad request")
	ErrBadPayload      = errors.New("bad payload")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrGatewayNotReady = errors.New("gateway not ready")
	ErrAgentInvocation = errors.New("agent invocation failed")
	ErrInternal        = errors.New("internal error")
)
