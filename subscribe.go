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
	"encoding/json"

	"github.com/blinklabs-io/goelectrum/session"
)

// ScripthashCallback is invoked with an address and its new status
type ScripthashCallback = session.ScripthashCallback

// HeaderCallback is invoked with the raw JSON payload of a new block header
type HeaderCallback = session.HeaderCallback

// SubscribeScripthashes subscribes to status change pushes for a set of
// scripthashes. The map is keyed by scripthash with the external address as
// value; the callback receives the address, never the raw scripthash. Both
// the initial status response and later pushes are delivered
func (c *Client) SubscribeScripthashes(scripthashes map[string]string, callback ScripthashCallback) error {
	sess, err := c.ensureSession()
	if err != nil {
		return err
	}
	for scripthash, addr := range scripthashes {
		// Per-iteration copies for the deliver closure; required for correct
		// capture now that the module builds with pre-1.22 loop semantics
		scripthash, addr := scripthash, addr
		sess.Subscriptions().AddScripthash(scripthash, addr, callback)
		deliver := func(result *session.Result) {
			if result.Err != nil {
				// A failed subscribe response is a correlated reply, not a push
				c.reportError(newRPCError(
					session.MethodScripthashSubscribe,
					result.Err,
				))
				return
			}
			callback(addr, decodeStatus(result.Data))
		}
		err := sess.SendSubscribe(
			session.MethodScripthashSubscribe,
			[]any{scripthash},
			deliver,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SubscribeHeaders subscribes to new block header pushes. The callback is
// invoked with the current tip header immediately and with every new header
// after that. Headers are persisted when a header store is configured
func (c *Client) SubscribeHeaders(callback HeaderCallback) error {
	sess, err := c.ensureSession()
	if err != nil {
		return err
	}
	wrapped := c.wrapHeaderCallback(callback)
	sess.Subscriptions().AddHeaderCallback(wrapped)
	deliver := func(result *session.Result) {
		if result.Err != nil {
			c.reportError(newRPCError(session.MethodHeadersSubscribe, result.Err))
			return
		}
		wrapped(result.Data)
	}
	return sess.SendSubscribe(session.MethodHeadersSubscribe, []any{}, deliver)
}

// wrapHeaderCallback adds header store persistence in front of a caller's
// header callback
func (c *Client) wrapHeaderCallback(callback HeaderCallback) HeaderCallback {
	if c.headers == nil {
		return callback
	}
	return func(header json.RawMessage) {
		var tip struct {
			Height *uint64 `json:"height"`
		}
		if err := json.Unmarshal(header, &tip); err == nil && tip.Height != nil {
			if err := c.headers.PutHeader(*tip.Height, header); err != nil {
				c.logger.Warn(
					"failed to persist header",
					"height", *tip.Height,
					"error", err,
				)
			}
		}
		callback(header)
	}
}

// decodeStatus decodes a scripthash status result, mapping null (no
// history) to an empty string
func decodeStatus(data json.RawMessage) string {
	if len(data) == 0 || string(data) == "null" {
		return ""
	}
	var status string
	if err := json.Unmarshal(data, &status); err != nil {
		return ""
	}
	return status
}
