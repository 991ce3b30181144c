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

package session_test

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/goelectrum/jsonrpc"
	"github.com/blinklabs-io/goelectrum/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// testPeer is the server end of a net.Pipe. A background goroutine reads
// framed requests so that session sends never block on the synchronous pipe
type testPeer struct {
	t           *testing.T
	conn        net.Conn
	requestChan chan *jsonrpc.Request
}

func newTestSession(t *testing.T) (*session.Session, *testPeer) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	sess := session.New(jsonrpc.NewConn(clientSide), nil)
	peer := &testPeer{
		t:           t,
		conn:        serverSide,
		requestChan: make(chan *jsonrpc.Request, 16),
	}
	go func() {
		reader := bufio.NewReader(serverSide)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var req jsonrpc.Request
			if err := json.Unmarshal(line, &req); err != nil {
				return
			}
			peer.requestChan <- &req
		}
	}()
	return sess, peer
}

// readRequest blocks until the next request arrives from the session
func (p *testPeer) readRequest() *jsonrpc.Request {
	p.t.Helper()
	select {
	case req := <-p.requestChan:
		return req
	case <-time.After(2 * time.Second):
		p.t.Fatal("timed out waiting for request")
		return nil
	}
}

func (p *testPeer) write(raw string) {
	p.t.Helper()
	p.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := p.conn.Write([]byte(raw + "\n"))
	require.NoError(p.t, err)
}

func (p *testPeer) respond(id uint64, result any) {
	data, err := json.Marshal(result)
	require.NoError(p.t, err)
	p.write(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, data))
}

func TestSessionOutOfOrderCorrelation(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, peer := newTestSession(t)
	defer sess.Close()
	defer peer.conn.Close()

	first, err := sess.Send("blockchain.block.get_header", []any{int64(1)})
	require.NoError(t, err)
	req1 := peer.readRequest()
	second, err := sess.Send("blockchain.block.get_header", []any{int64(2)})
	require.NoError(t, err)
	req2 := peer.readRequest()

	// Respond in reverse arrival order
	peer.respond(req2.ID, "second")
	peer.respond(req1.ID, "first")

	result2, err := second.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"second"`, string(result2.Data))
	result1, err := first.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"first"`, string(result1.Data))
}

func TestSessionTimeoutForgetsId(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, peer := newTestSession(t)
	defer sess.Close()
	defer peer.conn.Close()

	pending, err := sess.Send("server.banner", []any{})
	require.NoError(t, err)
	req := peer.readRequest()

	_, err = pending.Wait(50 * time.Millisecond)
	assert.ErrorIs(t, err, session.ErrTimeout)

	// A late arrival for the forgotten id must be dropped, not misdelivered,
	// and the session must stay usable
	peer.respond(req.ID, "late")

	next, err := sess.Send("server.banner", []any{})
	require.NoError(t, err)
	nextReq := peer.readRequest()
	peer.respond(nextReq.ID, "fresh")
	result, err := next.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"fresh"`, string(result.Data))
}

func TestSessionUnknownIdDropped(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, peer := newTestSession(t)
	defer sess.Close()
	defer peer.conn.Close()

	// A response for an id nothing is waiting on must not crash the session
	peer.respond(999, "stray")

	pending, err := sess.Send("server.banner", []any{})
	require.NoError(t, err)
	req := peer.readRequest()
	peer.respond(req.ID, "ok")
	result, err := pending.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(result.Data))
}

func TestSessionDuplicateResolutionDropped(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, peer := newTestSession(t)
	defer sess.Close()
	defer peer.conn.Close()

	pending, err := sess.Send("server.banner", []any{})
	require.NoError(t, err)
	req := peer.readRequest()
	peer.respond(req.ID, "once")
	// Resolving the same id a second time is dropped
	peer.respond(req.ID, "twice")

	result, err := pending.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"once"`, string(result.Data))

	// Session still functional afterwards
	next, err := sess.Send("server.banner", []any{})
	require.NoError(t, err)
	nextReq := peer.readRequest()
	peer.respond(nextReq.ID, "again")
	nextResult, err := next.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"again"`, string(nextResult.Data))
}

func TestSessionSubscribeDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, peer := newTestSession(t)
	defer sess.Close()
	defer peer.conn.Close()

	statusChan := make(chan string, 4)
	sess.Subscriptions().AddScripthash(
		"aa00",
		"1Abc",
		func(addr string, status string) {
			statusChan <- addr + "=" + status
		},
	)
	initialChan := make(chan *session.Result, 1)
	err := sess.SendSubscribe(
		session.MethodScripthashSubscribe,
		[]any{"aa00"},
		func(result *session.Result) {
			initialChan <- result
		},
	)
	require.NoError(t, err)
	req := peer.readRequest()

	// Direct response routes to the deliver func
	peer.respond(req.ID, "initial-status")
	select {
	case result := <-initialChan:
		assert.Equal(t, `"initial-status"`, string(result.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial subscription response")
	}

	// A later push routes through the registry by scripthash, delivering
	// the external address
	peer.write(`{"jsonrpc":"2.0","method":"blockchain.scripthash.subscribe","params":["aa00","new-status"]}`)
	select {
	case got := <-statusChan:
		assert.Equal(t, "1Abc=new-status", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scripthash push")
	}
}

func TestSessionPushWithErrorIsFatal(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, peer := newTestSession(t)
	defer sess.Close()
	defer peer.conn.Close()

	peer.write(`{"jsonrpc":"2.0","method":"blockchain.headers.subscribe","params":[],"error":"boom"}`)

	select {
	case err := <-sess.ErrorChan():
		assert.ErrorIs(t, err, session.ErrPushProtocolViolation)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push protocol violation")
	}
}

func TestSessionCloseFailsWaiters(t *testing.T) {
	defer goleak.VerifyNone(t)
	sess, peer := newTestSession(t)
	defer peer.conn.Close()

	pending, err := sess.Send("server.banner", []any{})
	require.NoError(t, err)
	peer.readRequest()

	go sess.Close()

	_, err = pending.Wait(2 * time.Second)
	assert.ErrorIs(t, err, session.ErrSessionClosed)
	// Close is idempotent
	require.NoError(t, sess.Close())
}
