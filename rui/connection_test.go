package rui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/gorilla/websocket"
)

// testTransport is an in-memory transport pair: the test feeds inbound frames
// and drains outbound frames over channels.
type testTransport struct {
	inbound  chan []byte
	outbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newTestTransport() *testTransport {
	return &testTransport{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (self *testTransport) WriteMessage(messageType int, data []byte) error {
	select {
	case <-self.closed:
		return io.ErrClosedPipe
	default:
	}
	if messageType == websocket.PingMessage {
		return nil
	}
	self.outbound <- append([]byte{}, data...)
	return nil
}

func (self *testTransport) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-self.inbound:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, data, nil
	case <-self.closed:
		return 0, nil, io.ErrClosedPipe
	}
}

func (self *testTransport) SetWriteDeadline(t time.Time) error {
	return nil
}

func (self *testTransport) Close() error {
	self.closeOnce.Do(func() {
		close(self.closed)
	})
	return nil
}

func (self *testTransport) nextOutbound(t *testing.T) any {
	select {
	case data := <-self.outbound:
		message, err := DecodeMessage(data)
		assert.Equal(t, nil, err)
		return message
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for outbound frame")
		return nil
	}
}

func testConnectionSettings() *ConnectionSettings {
	settings := DefaultConnectionSettings()
	settings.ReconnectTimeout = 10 * time.Millisecond
	return settings
}

func TestConnectionInitializeAndUpdate(t *testing.T) {
	transport := newTestTransport()
	dial := func(ctx context.Context) (MessageTransport, error) {
		return transport, nil
	}

	tree := newTestTree(t, `<div id="out"></div>`)
	roots := make(chan string, 16)

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connection := NewConnection(
		cancelCtx,
		dial,
		tree,
		NewRegistry(),
		"demo",
		"session-token",
		func(rootId string) {
			roots <- rootId
		},
		testConnectionSettings(),
	)
	defer connection.Close()

	initialize, ok := transport.nextOutbound(t).(*InitializeMessage)
	assert.Equal(t, true, ok)
	assert.Equal(t, "demo", initialize.Title)
	assert.Equal(t, "session-token", initialize.Args)
	assert.NotEqual(t, "", initialize.Initialize)

	transport.inbound <- RequireEncodeMessage(&UpdateMessage{
		Update: []*UpdateOperation{
			{Target: "out.innerHTML", Value: "hello"},
		},
	})

	select {
	case root := <-roots:
		assert.Equal(t, "out", root)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for root notification")
	}
	assert.Equal(t, "hello", tree.ResolveId("out").Content())
}

func TestConnectionCall(t *testing.T) {
	transport := newTestTransport()
	dial := func(ctx context.Context) (MessageTransport, error) {
		return transport, nil
	}

	tree := newTestTree(t, `<div id="form">`+
		`<input data-rui-template="names" data-rui-index="0" value="a">`+
		`</div>`)

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connection := NewConnection(
		cancelCtx,
		dial,
		tree,
		NewRegistry(),
		"demo",
		"",
		nil,
		testConnectionSettings(),
	)
	defer connection.Close()

	// drain the initialize frame first
	_, ok := transport.nextOutbound(t).(*InitializeMessage)
	assert.Equal(t, true, ok)

	err := connection.Call("service.Save", map[string]any{
		"names": "*names",
		"mode":  "draft",
	}, "form")
	assert.Equal(t, nil, err)

	call, ok := transport.nextOutbound(t).(*CallMessage)
	assert.Equal(t, true, ok)
	assert.Equal(t, "service.Save", call.Call.Function)
	assert.Equal(t, "form", call.Call.Id)
	assert.Equal(t, "draft", call.Call.Args["mode"])
	// the template arg was collected before sending; json carries it as []any
	assert.Equal(t, []any{"a"}, call.Call.Args["names"])
}

func TestConnectionCloseReleasesTransport(t *testing.T) {
	transport := newTestTransport()
	dial := func(ctx context.Context) (MessageTransport, error) {
		return transport, nil
	}

	tree := newTestTree(t, `<div id="out"></div>`)

	connection := NewConnection(
		context.Background(),
		dial,
		tree,
		NewRegistry(),
		"demo",
		"",
		nil,
		testConnectionSettings(),
	)

	_, ok := transport.nextOutbound(t).(*InitializeMessage)
	assert.Equal(t, true, ok)

	// the read loop is parked in ReadMessage; Close must tear the socket down
	connection.Close()

	select {
	case <-transport.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for transport close")
	}
}

func TestConnectionReconnect(t *testing.T) {
	transports := make(chan *testTransport, 2)
	first := newTestTransport()
	second := newTestTransport()
	transports <- first
	transports <- second

	dialCount := 0
	dial := func(ctx context.Context) (MessageTransport, error) {
		select {
		case transport := <-transports:
			dialCount += 1
			return transport, nil
		default:
			return nil, fmt.Errorf("No more transports.")
		}
	}

	tree := newTestTree(t, `<div id="out"></div>`)

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connection := NewConnection(
		cancelCtx,
		dial,
		tree,
		NewRegistry(),
		"demo",
		"",
		nil,
		testConnectionSettings(),
	)
	defer connection.Close()

	_, ok := first.nextOutbound(t).(*InitializeMessage)
	assert.Equal(t, true, ok)

	// dropping the transport triggers a fresh dial and a fresh initialize
	first.Close()

	_, ok = second.nextOutbound(t).(*InitializeMessage)
	assert.Equal(t, true, ok)
	assert.Equal(t, 2, dialCount)
}
