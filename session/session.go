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

// Package session implements request/response correlation over a single
// JSON-RPC connection. A session allocates request identifiers, tracks
// pending requests until their responses arrive, and routes unsolicited
// server pushes to registered subscription callbacks
package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/goelectrum/jsonrpc"
)

var (
	// ErrTimeout is returned by Pending.Wait when no response arrives in time
	ErrTimeout = errors.New("timeout waiting for response")

	// ErrSessionClosed is returned when operating on a closed session
	ErrSessionClosed = errors.New("session closed")

	// ErrPushProtocolViolation is emitted when a server push carries an
	// error field
	ErrPushProtocolViolation = errors.New("push notification carried an error")
)

// Result is the outcome of a single request. Exactly one of Data and Err is
// populated
type Result struct {
	Method string
	Params []any
	Data   json.RawMessage
	Err    *jsonrpc.Error
}

// Pending tracks a sent request whose response has not yet arrived
type Pending struct {
	id         uint64
	session    *Session
	resultChan chan *Result
}

// ID returns the request identifier
func (p *Pending) ID() uint64 {
	return p.id
}

// Wait blocks until the response for this request arrives, the timeout
// fires, or the session shuts down. On timeout the request id is forgotten,
// so a late response is dropped rather than misdelivered
func (p *Pending) Wait(timeout time.Duration) (*Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-p.resultChan:
		return result, nil
	case <-timer.C:
		p.session.forget(p.id)
		// Drain in case the response landed while we were timing out
		select {
		case result := <-p.resultChan:
			return result, nil
		default:
		}
		return nil, ErrTimeout
	case <-p.session.doneChan:
		return nil, ErrSessionClosed
	}
}

// Session owns one connection plus the pending-request table and the
// subscription registry. A single dispatch goroutine consumes inbound frames
// and is the only resolver of pending requests
type Session struct {
	conn      *jsonrpc.Conn
	logger    *slog.Logger
	subs      *Subscriptions
	errorChan chan error
	doneChan  chan struct{}
	onceClose sync.Once
	waitGroup sync.WaitGroup

	pendingMutex sync.Mutex
	nextID       uint64
	pending      map[uint64]*Pending
	handlers     map[uint64]func(*Result)
	handlerInfo  map[uint64]requestInfo
}

type requestInfo struct {
	method string
	params []any
}

// New returns a Session over the provided connection and starts its dispatch
// goroutine
func New(conn *jsonrpc.Conn, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		conn:        conn,
		logger:      logger,
		subs:        NewSubscriptions(logger),
		errorChan:   make(chan error, 10),
		doneChan:    make(chan struct{}),
		pending:     map[uint64]*Pending{},
		handlers:    map[uint64]func(*Result){},
		handlerInfo: map[uint64]requestInfo{},
	}
	s.waitGroup.Add(1)
	go s.dispatchLoop()
	return s
}

// ErrorChan returns the channel for fatal session errors (transport failures
// and push protocol violations)
func (s *Session) ErrorChan() <-chan error {
	return s.errorChan
}

// Subscriptions returns the subscription registry for this session
func (s *Session) Subscriptions() *Subscriptions {
	return s.subs
}

// Send allocates a fresh request id, records a pending entry, and frames the
// request onto the wire. It does not wait for the response
func (s *Session) Send(method string, params []any) (*Pending, error) {
	select {
	case <-s.doneChan:
		return nil, ErrSessionClosed
	default:
	}
	s.pendingMutex.Lock()
	s.nextID++
	id := s.nextID
	p := &Pending{
		id:      id,
		session: s,
		// Buffered so dispatch never blocks on a slow waiter
		resultChan: make(chan *Result, 1),
	}
	s.pending[id] = p
	s.handlerInfo[id] = requestInfo{method: method, params: params}
	s.pendingMutex.Unlock()
	if err := s.conn.Send(jsonrpc.NewRequest(id, method, params)); err != nil {
		s.forget(id)
		return nil, err
	}
	return p, nil
}

// SendSubscribe sends a request whose response is delivered to the provided
// function instead of a waitable pending entry. Used for subscription
// requests, where the direct response and later notifications flow to the
// same consumer
func (s *Session) SendSubscribe(method string, params []any, deliver func(*Result)) error {
	select {
	case <-s.doneChan:
		return ErrSessionClosed
	default:
	}
	s.pendingMutex.Lock()
	s.nextID++
	id := s.nextID
	s.handlers[id] = deliver
	s.handlerInfo[id] = requestInfo{method: method, params: params}
	s.pendingMutex.Unlock()
	if err := s.conn.Send(jsonrpc.NewRequest(id, method, params)); err != nil {
		s.forget(id)
		return err
	}
	return nil
}

// Close shuts down the session and its connection. Outstanding Wait calls
// return ErrSessionClosed. Safe to call multiple times
func (s *Session) Close() error {
	var err error
	s.onceClose.Do(func() {
		close(s.doneChan)
		err = s.conn.Close()
		s.waitGroup.Wait()
		close(s.errorChan)
	})
	return err
}

// forget removes a pending entry. Removal is idempotent, so stale late
// arrivals for a forgotten id are simply dropped by the dispatch loop
func (s *Session) forget(id uint64) {
	s.pendingMutex.Lock()
	delete(s.pending, id)
	delete(s.handlers, id)
	delete(s.handlerInfo, id)
	s.pendingMutex.Unlock()
}

// fatal reports an unrecoverable session error and shuts down
func (s *Session) fatal(err error) {
	select {
	case <-s.doneChan:
		return
	default:
	}
	s.errorChan <- err
	go s.Close()
}

func (s *Session) dispatchLoop() {
	defer s.waitGroup.Done()
	for {
		select {
		case <-s.doneChan:
			return
		case err, ok := <-s.conn.ErrorChan():
			if !ok {
				return
			}
			s.fatal(err)
			return
		case frame, ok := <-s.conn.Receive():
			if !ok {
				return
			}
			if err := s.handleFrame(frame); err != nil {
				s.fatal(err)
				return
			}
		}
	}
}

func (s *Session) handleFrame(frame *jsonrpc.Frame) error {
	if frame.ID != nil {
		s.resolve(*frame.ID, frame)
		return nil
	}
	if frame.IsNotification() {
		if frame.Error != nil {
			return ErrPushProtocolViolation
		}
		return s.subs.Dispatch(frame.Method, frame.Params)
	}
	s.logger.Warn(
		"discarding frame with no id and no method",
	)
	return nil
}

// resolve delivers a response frame to whichever consumer is registered for
// its id. A response for an unknown or already-resolved id is logged and
// dropped
func (s *Session) resolve(id uint64, frame *jsonrpc.Frame) {
	s.pendingMutex.Lock()
	p, havePending := s.pending[id]
	handler, haveHandler := s.handlers[id]
	info := s.handlerInfo[id]
	if havePending {
		delete(s.pending, id)
		delete(s.handlerInfo, id)
	}
	if haveHandler {
		// Subscription handlers receive only the direct response via this
		// path; later matching notifications arrive without an id
		delete(s.handlers, id)
		delete(s.handlerInfo, id)
	}
	s.pendingMutex.Unlock()
	result := &Result{
		Method: info.method,
		Params: info.params,
		Data:   frame.Result,
		Err:    frame.Error,
	}
	switch {
	case havePending:
		p.resultChan <- result
	case haveHandler:
		handler(result)
	default:
		s.logger.Warn(
			"response for unknown or already-resolved request id",
			"id", id,
		)
	}
}
