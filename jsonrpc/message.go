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

package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version sent with every request
const Version = "2.0"

// Request represents an outbound JSON-RPC request
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// NewRequest returns a Request for the given id, method, and positional params
func NewRequest(id uint64, method string, params []any) *Request {
	if params == nil {
		params = []any{}
	}
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Frame represents a decoded inbound message. A frame with a non-nil ID is a
// response to a request; a frame with a method and no ID is a server-push
// notification
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsNotification returns true if the frame is an unsolicited server push
func (f *Frame) IsNotification() bool {
	return f.ID == nil && f.Method != ""
}

// Error represents a JSON-RPC error object. ElectrumX servers emit both the
// standard {"code": ..., "message": ...} object form and a bare string, so we
// accept either on decode
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server error: %s", e.Message)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var msg string
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		e.Message = msg
		return nil
	}
	type rpcError Error
	var tmp rpcError
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*e = Error(tmp)
	return nil
}
