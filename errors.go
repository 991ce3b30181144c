// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package electrum

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/goelectrum/jsonrpc"
	"github.com/blinklabs-io/goelectrum/session"
)

var (
	// ErrNoServersAvailable is returned when the catalog has no usable
	// entry for the configured transport mode
	ErrNoServersAvailable = errors.New("no usable servers available")

	// ErrFailoverExhausted is returned once the number of distinct failed
	// hosts reaches the configured maximum for a failover sequence
	ErrFailoverExhausted = errors.New("exhausted maximum number of servers")

	// ErrPushProtocolViolation is emitted on the client error channel when
	// a server push carries an error field
	ErrPushProtocolViolation = session.ErrPushProtocolViolation

	// ErrClientClosed is returned when operating on a closed client
	ErrClientClosed = errors.New("client closed")
)

// RPCError is a server-supplied error for a direct call. The server is
// reachable and the call itself failed, so it never triggers failover
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error for %s: %s", e.Method, e.Message)
}

// newRPCError wraps a wire-level error object with the method it answered
func newRPCError(method string, err *jsonrpc.Error) *RPCError {
	return &RPCError{
		Method:  method,
		Code:    err.Code,
		Message: err.Message,
	}
}
