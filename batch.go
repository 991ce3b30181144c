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
	"sync"

	"github.com/blinklabs-io/goelectrum/session"
)

// Request is one method invocation within a batch
type Request struct {
	Method string
	Params []any
}

// Result is the outcome of a single request within a batch
type Result = session.Result

// CallMany issues a list of requests concurrently against the current
// server and waits for all results, preserving input order in the output.
// A batch is all-or-nothing with respect to server identity: any transport
// error or per-request timeout discards the batch, fails over to a fresh
// server, and resubmits the entire batch. Only the maxServers bound limits
// total retries. A fully successful batch resets the failed host set
func (c *Client) CallMany(requests []Request) ([]*Result, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	for {
		select {
		case <-c.doneChan:
			return nil, ErrClientClosed
		default:
		}
		sess, err := c.ensureSession()
		if err != nil {
			return nil, err
		}
		results, err := c.trySendBatch(sess, requests)
		if err == nil {
			c.clearFailedHosts()
			return results, nil
		}
		c.logger.Warn(
			"batch failed, changing server",
			"requests", len(requests),
			"error", err,
		)
		if err := c.failover(sess); err != nil {
			return nil, err
		}
	}
}

// trySendBatch issues the whole batch against one session. Any send error
// or wait timeout fails the batch as a unit
func (c *Client) trySendBatch(sess *session.Session, requests []Request) ([]*Result, error) {
	pendings := make([]*session.Pending, len(requests))
	for i, req := range requests {
		pending, err := sess.Send(req.Method, req.Params)
		if err != nil {
			return nil, err
		}
		pendings[i] = pending
	}
	results := make([]*Result, len(requests))
	var waitGroup sync.WaitGroup
	var errMutex sync.Mutex
	var firstErr error
	for i, pending := range pendings {
		waitGroup.Add(1)
		go func(i int, pending *session.Pending) {
			defer waitGroup.Done()
			result, err := pending.Wait(c.timeout)
			if err != nil {
				errMutex.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMutex.Unlock()
				return
			}
			results[i] = result
		}(i, pending)
	}
	waitGroup.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// Call issues a single request and unwraps its result. A server-supplied
// error field is surfaced as an *RPCError; it never triggers failover
func (c *Client) Call(method string, params ...any) (json.RawMessage, error) {
	results, err := c.CallMany([]Request{{Method: method, Params: params}})
	if err != nil {
		return nil, err
	}
	result := results[0]
	if result.Err != nil {
		return nil, newRPCError(method, result.Err)
	}
	return result.Data, nil
}
