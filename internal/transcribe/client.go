package transcribe

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/avaass/internal/protocol"
	"github.com/ent0n29/avaass/internal/transport"
)

// ClientPolicy is the reconnect schedule of the transcription client.
var ClientPolicy = transport.Policy{Backoff: 3 * time.Second, MaxRetries: 5}

// Client streams audio frames to a transcription socket and fans results out
// to registered observers.
type Client struct {
	tr *transport.Transport

	mu        sync.Mutex
	onResult  map[int]func(protocol.Transcription)
	onError   map[int]func(error)
	nextID    int
	unsubRead func()
}

func NewClient(url string, policy transport.Policy) *Client {
	c := &Client{
		tr:       transport.New(url, policy, transport.WithName("transcription client")),
		onResult: make(map[int]func(protocol.Transcription)),
		onError:  make(map[int]func(error)),
	}
	c.unsubRead = c.tr.Subscribe(c.handle)
	return c
}

func (c *Client) Connect(ctx context.Context) error { return c.tr.Connect(ctx) }

// SendAudio ships one captured chunk as a binary frame.
func (c *Client) SendAudio(ctx context.Context, chunk []byte) error {
	return c.tr.SendBinary(ctx, chunk)
}

func (c *Client) State() transport.State { return c.tr.State() }

// OnTranscription registers fn and returns its unsubscribe function.
func (c *Client) OnTranscription(fn func(protocol.Transcription)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onResult[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onResult, id)
	}
}

// OnError registers fn for server error messages and transport failures.
func (c *Client) OnError(fn func(error)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onError[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onError, id)
	}
}

func (c *Client) Close() error {
	c.unsubRead()
	return c.tr.Close()
}

func (c *Client) handle(msg transport.Message) {
	switch msg.Kind {
	case transport.KindJSON:
		parsed, err := protocol.ParseServerMessage(msg.Data)
		if err != nil {
			log.Printf("transcription client ignored message: %v", err)
			return
		}
		switch m := parsed.(type) {
		case protocol.Transcription:
			c.emitResult(m)
		case protocol.ErrorMessage:
			c.emitError(errors.New(m.Error))
		}
	case transport.KindError:
		c.emitError(msg.Err)
	}
}

func (c *Client) emitResult(t protocol.Transcription) {
	c.mu.Lock()
	fns := make([]func(protocol.Transcription), 0, len(c.onResult))
	for _, fn := range c.onResult {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	fns := make([]func(error), 0, len(c.onError))
	for _, fn := range c.onError {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
