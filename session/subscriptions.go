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

package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Method names for the subscription pushes we dispatch
const (
	MethodScripthashSubscribe = "blockchain.scripthash.subscribe"
	MethodHeadersSubscribe    = "blockchain.headers.subscribe"
)

// ScripthashCallback is invoked with the external identifier registered for
// a scripthash (typically the wallet address) and its new status
type ScripthashCallback func(externalId string, status string)

// HeaderCallback is invoked with the raw JSON payload of a new block header
type HeaderCallback func(header json.RawMessage)

type scripthashEntry struct {
	externalId string
	callback   ScripthashCallback
}

// Subscriptions maps push notification keys to callbacks. Entries are only
// ever added; the protocol in use has no unsubscribe
type Subscriptions struct {
	mutex           sync.Mutex
	logger          *slog.Logger
	scripthashes    map[string]scripthashEntry
	headerCallbacks []HeaderCallback
}

// NewSubscriptions returns an empty subscription registry
func NewSubscriptions(logger *slog.Logger) *Subscriptions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriptions{
		logger:       logger,
		scripthashes: map[string]scripthashEntry{},
	}
}

// AddScripthash registers a callback for status pushes matching the given
// scripthash. The external id (not the raw scripthash) is what the callback
// receives
func (s *Subscriptions) AddScripthash(scripthash string, externalId string, callback ScripthashCallback) {
	s.mutex.Lock()
	s.scripthashes[scripthash] = scripthashEntry{
		externalId: externalId,
		callback:   callback,
	}
	s.mutex.Unlock()
}

// AddHeaderCallback registers a callback invoked for every new block header
// push
func (s *Subscriptions) AddHeaderCallback(callback HeaderCallback) {
	s.mutex.Lock()
	s.headerCallbacks = append(s.headerCallbacks, callback)
	s.mutex.Unlock()
}

// Dispatch routes a push notification to the matching callback(s)
func (s *Subscriptions) Dispatch(method string, params json.RawMessage) error {
	switch method {
	case MethodScripthashSubscribe:
		return s.dispatchScripthash(params)
	case MethodHeadersSubscribe:
		return s.dispatchHeader(params)
	default:
		s.logger.Warn(
			"discarding push for unknown method",
			"method", method,
		)
		return nil
	}
}

func (s *Subscriptions) dispatchScripthash(params json.RawMessage) error {
	var items []json.RawMessage
	if err := json.Unmarshal(params, &items); err != nil {
		return fmt.Errorf("malformed scripthash push params: %w", err)
	}
	if len(items) != 2 {
		return fmt.Errorf("scripthash push with %d params, expected 2", len(items))
	}
	var scripthash string
	if err := json.Unmarshal(items[0], &scripthash); err != nil {
		return fmt.Errorf("malformed scripthash push key: %w", err)
	}
	// A null status means the scripthash has no history
	var status string
	if string(items[1]) != "null" {
		if err := json.Unmarshal(items[1], &status); err != nil {
			return fmt.Errorf("malformed scripthash push status: %w", err)
		}
	}
	s.mutex.Lock()
	entry, ok := s.scripthashes[scripthash]
	s.mutex.Unlock()
	if !ok {
		s.logger.Warn(
			"scripthash push with no registered subscriber",
			"scripthash", scripthash,
		)
		return nil
	}
	entry.callback(entry.externalId, status)
	return nil
}

func (s *Subscriptions) dispatchHeader(params json.RawMessage) error {
	var items []json.RawMessage
	if err := json.Unmarshal(params, &items); err != nil {
		return fmt.Errorf("malformed header push params: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("header push with no payload")
	}
	s.mutex.Lock()
	callbacks := make([]HeaderCallback, len(s.headerCallbacks))
	copy(callbacks, s.headerCallbacks)
	s.mutex.Unlock()
	for _, callback := range callbacks {
		callback(items[0])
	}
	return nil
}
