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

package electrum_test

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// serverRequest is a decoded request as seen by the mock server
type serverRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// serverConn wraps one accepted connection with a write mutex
type serverConn struct {
	t     *testing.T
	conn  net.Conn
	mutex sync.Mutex
}

func (sc *serverConn) writeLine(raw string) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Best effort; the client may have gone away mid-test
	_, _ = sc.conn.Write([]byte(raw + "\n"))
}

func (sc *serverConn) reply(id uint64, result any) {
	data, err := json.Marshal(result)
	require.NoError(sc.t, err)
	sc.writeLine(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, data))
}

func (sc *serverConn) replyError(id uint64, code int, message string) {
	sc.writeLine(fmt.Sprintf(
		`{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%q}}`,
		id, code, message,
	))
}

func (sc *serverConn) notify(method string, params string) {
	sc.writeLine(fmt.Sprintf(
		`{"jsonrpc":"2.0","method":%q,"params":%s}`,
		method, params,
	))
}

// mockServer is a minimal scriptable ElectrumX server. The handshake is
// answered automatically unless versionError is set; all other requests go
// to the configured handler
type mockServer struct {
	t        *testing.T
	listener net.Listener

	mutex        sync.Mutex
	handler      func(sc *serverConn, req *serverRequest)
	versionError bool
	received     []string
	conns        []net.Conn
}

func newMockServer(t *testing.T, handler func(sc *serverConn, req *serverRequest)) *mockServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &mockServer{
		t:        t,
		listener: listener,
		handler:  handler,
	}
	go s.acceptLoop()
	return s
}

// Port returns the TCP port the mock server listens on
func (s *mockServer) Port() string {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	return port
}

// Close shuts down the listener and all accepted connections
func (s *mockServer) Close() {
	s.listener.Close()
	s.mutex.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
	s.mutex.Unlock()
}

// setHandler swaps the request handler mid-test
func (s *mockServer) setHandler(handler func(sc *serverConn, req *serverRequest)) {
	s.mutex.Lock()
	s.handler = handler
	s.mutex.Unlock()
}

// setVersionError makes the handshake fail for future connections
func (s *mockServer) setVersionError(fail bool) {
	s.mutex.Lock()
	s.versionError = fail
	s.mutex.Unlock()
}

// receivedMethods returns the methods seen so far, excluding the handshake
func (s *mockServer) receivedMethods() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func (s *mockServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mutex.Lock()
		s.conns = append(s.conns, conn)
		s.mutex.Unlock()
		go s.serveConn(conn)
	}
}

func (s *mockServer) serveConn(conn net.Conn) {
	sc := &serverConn{t: s.t, conn: conn}
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req serverRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}
		s.mutex.Lock()
		handler := s.handler
		versionError := s.versionError
		if req.Method != "server.version" {
			s.received = append(s.received, req.Method)
		}
		s.mutex.Unlock()
		if req.Method == "server.version" {
			if versionError {
				sc.replyError(req.ID, 1, "unsupported client")
			} else {
				sc.reply(req.ID, []string{"MockElectrumX 1.16", "1.4"})
			}
			continue
		}
		if handler != nil {
			handler(sc, &req)
		}
	}
}
