package rui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"
)

type ConnectionSettings struct {
	WsHandshakeTimeout time.Duration
	WriteTimeout       time.Duration
	PingTimeout        time.Duration
	ReconnectTimeout   time.Duration
	ChunkSize          ByteCount
}

func DefaultConnectionSettings() *ConnectionSettings {
	return &ConnectionSettings{
		WsHandshakeTimeout: 2 * time.Second,
		WriteTimeout:       5 * time.Second,
		PingTimeout:        15 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		ChunkSize:          DefaultChunkSize,
	}
}

// MessageTransport is the injectable transport under the connection: the
// subset of a websocket conn the protocol needs.
type MessageTransport interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, data []byte, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

type TransportDialFunc func(ctx context.Context) (MessageTransport, error)

func WsDialFunc(url string, settings *ConnectionSettings) TransportDialFunc {
	return func(ctx context.Context) (MessageTransport, error) {
		dialer := &websocket.Dialer{
			HandshakeTimeout: settings.WsHandshakeTimeout,
		}
		ws, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}
}

type RootCallback func(rootId string)

// Connection is the single persistent connection of one client session,
// constructed once per client lifecycle. Inbound update batches run on the
// read loop to completion, one at a time, so tree mutation needs no locking
// discipline. The connection reconnects with a fixed timeout; transport
// errors are logged, never fatal.
type Connection struct {
	ctx    context.Context
	cancel context.CancelFunc

	dial        TransportDialFunc
	tree        ElementTree
	interpreter *Interpreter
	title       string
	sessionArgs string
	notify      RootCallback

	settings *ConnectionSettings

	stateLock sync.Mutex
	transport MessageTransport

	writeLock sync.Mutex
}

func NewConnectionWithDefaults(
	ctx context.Context,
	dial TransportDialFunc,
	tree ElementTree,
	registry *Registry,
	title string,
	sessionArgs string,
	notify RootCallback,
) *Connection {
	return NewConnection(
		ctx,
		dial,
		tree,
		registry,
		title,
		sessionArgs,
		notify,
		DefaultConnectionSettings(),
	)
}

func NewConnection(
	ctx context.Context,
	dial TransportDialFunc,
	tree ElementTree,
	registry *Registry,
	title string,
	sessionArgs string,
	notify RootCallback,
	settings *ConnectionSettings,
) *Connection {
	cancelCtx, cancel := context.WithCancel(ctx)
	connection := &Connection{
		ctx:         cancelCtx,
		cancel:      cancel,
		dial:        dial,
		tree:        tree,
		interpreter: NewInterpreter(tree, registry),
		title:       title,
		sessionArgs: sessionArgs,
		notify:      notify,
		settings:    settings,
	}
	go connection.run()
	return connection
}

func (self *Connection) run() {
	defer self.cancel()

	for {
		transport, err := self.dial(self.ctx)
		if err != nil {
			glog.Infof("[conn]dial error = %s\n", err)
		} else {
			self.handle(transport)
		}
		reconnect := NewReconnect(self.settings.ReconnectTimeout)
		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *Connection) handle(transport MessageTransport) {
	defer transport.Close()

	self.stateLock.Lock()
	self.transport = transport
	self.stateLock.Unlock()
	defer func() {
		self.stateLock.Lock()
		self.transport = nil
		self.stateLock.Unlock()
	}()

	// one initialize per connection open
	initialize := &InitializeMessage{
		Initialize: self.tree.Markup(),
		Args:       self.sessionArgs,
		Title:      self.title,
	}
	if err := self.WriteMessageFrame(initialize); err != nil {
		glog.Infof("[conn]initialize error = %s\n", err)
		return
	}

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	// cancellation must unblock the read loop
	go func() {
		<-handleCtx.Done()
		transport.Close()
	}()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case <-time.After(self.settings.PingTimeout):
				if err := self.writeFrame(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-handleCtx.Done():
			return
		default:
		}

		messageType, data, err := transport.ReadMessage()
		if err != nil {
			glog.Infof("[conn]read error = %s\n", err)
			return
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			self.dispatch(data)
		}
	}
}

func (self *Connection) dispatch(data []byte) {
	message, err := DecodeMessage(data)
	if err != nil {
		glog.Infof("[conn]decode error = %s\n", err)
		return
	}
	switch v := message.(type) {
	case *UpdateMessage:
		roots := self.interpreter.ApplyBatch(v.Update)
		if self.notify != nil {
			for _, root := range roots {
				self.notify(root)
			}
		}
	default:
		glog.V(2).Infof("[conn]ignore %T\n", v)
	}
}

// Call sends one outbound call for the element named by id. Selector and
// reference args are collected from the live tree first.
func (self *Connection) Call(function string, args map[string]any, id string) error {
	resolved := args
	if anchor := self.tree.ResolveId(id); anchor != nil {
		var err error
		resolved, err = CollectArgs(self.tree, anchor, args)
		if err != nil {
			return err
		}
	}
	return self.WriteMessageFrame(&CallMessage{
		Call: CallPayload{
			Function: function,
			Args:     resolved,
			Id:       id,
		},
	})
}

// Upload streams one file selection over the connection using the chunked
// upload sub-protocol.
func (self *Connection) Upload(ctx context.Context, selection *Selection) error {
	uploader := NewUploader(self, &UploadSettings{
		ChunkSize: self.settings.ChunkSize,
	})
	return uploader.Send(ctx, selection)
}

func (self *Connection) Connected() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.transport != nil
}

func (self *Connection) WriteBinaryFrame(p []byte) error {
	return self.writeFrame(websocket.BinaryMessage, p)
}

func (self *Connection) WriteMessageFrame(message any) error {
	b, err := EncodeMessage(message)
	if err != nil {
		return err
	}
	return self.writeFrame(websocket.TextMessage, b)
}

func (self *Connection) writeFrame(messageType int, data []byte) error {
	self.stateLock.Lock()
	transport := self.transport
	self.stateLock.Unlock()
	if transport == nil {
		return fmt.Errorf("Not connected.")
	}

	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	transport.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	return transport.WriteMessage(messageType, data)
}

func (self *Connection) Close() {
	self.cancel()
}

type Reconnect struct {
	timeout time.Duration
	start   time.Time
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		timeout: timeout,
		start:   time.Now(),
	}
}

func (self *Reconnect) After() <-chan time.Time {
	return time.After(self.timeout - time.Since(self.start))
}
