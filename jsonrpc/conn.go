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

// Package jsonrpc implements newline-delimited JSON-RPC 2.0 framing over a
// net.Conn, as used by ElectrumX servers
package jsonrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Maximum size of a single inbound frame
const DefaultMaxFrameSize = 5 * 1000 * 1000

// ErrConnClosed is returned when sending on a closed connection
var ErrConnClosed = errors.New("connection closed")

// Conn wraps a net.Conn with JSON-RPC framing. Inbound frames are decoded by
// a read loop goroutine and delivered in arrival order via Receive()
type Conn struct {
	conn         net.Conn
	maxFrameSize int
	sendMutex    sync.Mutex
	doneChan     chan struct{}
	errorChan    chan error
	recvChan     chan *Frame
	onceClose    sync.Once
	waitGroup    sync.WaitGroup
}

// ConnOptionFunc is a function that modifies the Conn config
type ConnOptionFunc func(*Conn)

// WithMaxFrameSize overrides the maximum inbound frame size
func WithMaxFrameSize(size int) ConnOptionFunc {
	return func(c *Conn) {
		c.maxFrameSize = size
	}
}

// NewConn returns a Conn wrapping the provided network connection. The read
// loop is started immediately
func NewConn(conn net.Conn, options ...ConnOptionFunc) *Conn {
	c := &Conn{
		conn:         conn,
		maxFrameSize: DefaultMaxFrameSize,
		doneChan:     make(chan struct{}),
		errorChan:    make(chan error, 10),
		recvChan:     make(chan *Frame, 10),
	}
	for _, option := range options {
		option(c)
	}
	c.waitGroup.Add(1)
	go c.readLoop()
	return c
}

// Receive returns the channel for decoded inbound frames. The channel is
// closed when the connection shuts down
func (c *Conn) Receive() <-chan *Frame {
	return c.recvChan
}

// ErrorChan returns the channel for asynchronous read/decode errors
func (c *Conn) ErrorChan() <-chan error {
	return c.errorChan
}

// Send frames and writes a single request. Only one request is written at a
// time
func (c *Conn) Send(req *Request) error {
	select {
	case <-c.doneChan:
		return ErrConnClosed
	default:
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	// We use a mutex to make sure only one caller can send at a time
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	return nil
}

// Close shuts down the connection. It's safe to call multiple times. Any
// blocked Receive() consumers observe channel closure
func (c *Conn) Close() error {
	var err error
	c.onceClose.Do(func() {
		// Close doneChan to signify that we're shutting down
		close(c.doneChan)
		err = c.conn.Close()
		// Wait for the read loop to exit before closing its channels
		c.waitGroup.Wait()
		close(c.recvChan)
		close(c.errorChan)
	})
	return err
}

// sendError delivers a read-side error to the consumer unless we're already
// shutting down
func (c *Conn) sendError(err error) {
	select {
	case <-c.doneChan:
		return
	default:
	}
	c.errorChan <- err
}

func (c *Conn) readLoop() {
	defer c.waitGroup.Done()
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), c.maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := &Frame{}
		if err := json.Unmarshal(line, frame); err != nil {
			c.sendError(fmt.Errorf("malformed frame: %w", err))
			return
		}
		select {
		case <-c.doneChan:
			return
		case c.recvChan <- frame:
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			err = fmt.Errorf("frame exceeds maximum size of %d bytes: %w", c.maxFrameSize, err)
		}
		c.sendError(err)
		return
	}
	// EOF from the server is still a transport failure for our purposes
	c.sendError(errors.New("connection closed by remote"))
}
