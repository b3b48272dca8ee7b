package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/avaass/internal/protocol"
	"github.com/ent0n29/avaass/internal/reliability"
	"github.com/ent0n29/avaass/internal/transport"
)

// State is a step of one client request.
type State string

const (
	StatePending  State = "pending"
	StateRESTSent State = "rest_sent"
	StateRESTOK   State = "rest_ok"
	StateRESTFail State = "rest_fail"
	StateWSWait   State = "ws_wait"
	StateWSSent   State = "ws_sent"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// StateHook observes request transitions.
type StateHook func(requestID string, state State)

// StreamPolicy reconnects the streaming socket forever every 3 seconds.
var StreamPolicy = transport.Policy{Backoff: 3 * time.Second}

const maxAudioBytes = 64 << 20

// Client synthesizes through a remote server: REST first, then the streaming socket.
type Client struct {
	restURL     string
	http        *http.Client
	tr          *transport.Transport
	connectWait time.Duration
	// streamWait bounds one streaming request after it was sent.
	streamWait time.Duration
	hook       StateHook

	startOnce sync.Once
	streamMu  sync.Mutex
}

type ClientOption func(*Client)

func WithStateHook(h StateHook) ClientOption { return func(c *Client) { c.hook = h } }

func WithConnectWait(d time.Duration) ClientOption { return func(c *Client) { c.connectWait = d } }

func WithStreamTimeout(d time.Duration) ClientOption { return func(c *Client) { c.streamWait = d } }

func WithHTTPClient(hc *http.Client) ClientOption { return func(c *Client) { c.http = hc } }

func WithStreamPolicy(p transport.Policy) ClientOption {
	return func(c *Client) {
		c.tr = transport.New(c.tr.URL(), p, transport.WithName("synthesis stream"))
	}
}

// NewClient builds a client for a server at baseURL (http or https).
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid synthesis server url %q", baseURL)
	}
	ws := *u
	switch u.Scheme {
	case "http":
		ws.Scheme = "ws"
	case "https":
		ws.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported synthesis server scheme %q", u.Scheme)
	}
	ws.Path = strings.TrimRight(u.Path, "/") + "/tts"

	c := &Client{
		restURL:     base + "/synthesize",
		http:        &http.Client{Timeout: 2 * time.Minute},
		tr:          transport.New(ws.String(), StreamPolicy, transport.WithName("synthesis stream")),
		connectWait: 5 * time.Second,
		streamWait:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Synthesize(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, ErrEmptyText
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	c.setState(req.RequestID, StatePending)

	res, err := c.viaREST(ctx, req)
	if err == nil {
		c.setState(req.RequestID, StateRESTOK)
		c.setState(req.RequestID, StateComplete)
		return res, nil
	}
	if ctx.Err() != nil {
		c.setState(req.RequestID, StateFailed)
		return Result{}, ctx.Err()
	}
	log.Printf("synthesis client rest failed for %s, falling back to stream: %v", req.RequestID, err)
	c.setState(req.RequestID, StateRESTFail)

	res, err = c.viaStream(ctx, req)
	if err != nil {
		c.setState(req.RequestID, StateFailed)
		return Result{}, err
	}
	c.setState(req.RequestID, StateComplete)
	return res, nil
}

// Close stops the streaming socket.
func (c *Client) Close() error {
	return c.tr.Close()
}

type restError struct {
	status int
	body   string
}

func (e *restError) Error() string {
	retry := ""
	if reliability.IsRetryableHTTPStatus(e.status) {
		retry = ", retryable"
	}
	return fmt.Sprintf("synthesize status %d%s: %s", e.status, retry, e.body)
}

func (c *Client) viaREST(ctx context.Context, req Request) (Result, error) {
	payload, err := json.Marshal(protocol.SynthesisRequest{
		Text:         req.Text,
		Voice:        req.Voice,
		VoiceProfile: req.VoiceProfileID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.setState(req.RequestID, StateRESTSent)
	res, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Result{}, &restError{status: res.StatusCode, body: strings.TrimSpace(string(body))}
	}
	audio, err := io.ReadAll(io.LimitReader(res.Body, maxAudioBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if len(audio) == 0 {
		return Result{}, errors.New("synthesize returned empty body")
	}
	format := res.Header.Get("Content-Type")
	if format == "" {
		format = "audio/wav"
	}
	return Result{
		RequestID: req.RequestID,
		Audio:     audio,
		Format:    format,
		Mode:      ModeREST,
		Cloned:    strings.EqualFold(res.Header.Get("X-Voice-Clone"), "true"),
	}, nil
}

// viaStream sends one request over the socket. The END and ERROR sentinels
// carry no request id, so streaming requests are serialized. A request
// abandoned after sending drops the socket so its late frames cannot be
// taken for the next request's audio.
func (c *Client) viaStream(ctx context.Context, req Request) (Result, error) {
	c.startOnce.Do(func() {
		if err := c.tr.Connect(context.WithoutCancel(ctx)); err != nil {
			log.Printf("synthesis stream connect: %v", err)
		}
	})

	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	c.setState(req.RequestID, StateWSWait)
	waitCtx, cancel := context.WithTimeout(ctx, c.connectWait)
	err := c.tr.WaitConnected(waitCtx)
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("synthesis stream unavailable: %w", err)
	}

	type outcome struct {
		audio []byte
		err   error
	}
	done := make(chan outcome, 1)
	var (
		mu       sync.Mutex
		buf      []byte
		finished bool
	)
	finish := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		finished = true
		done <- o
	}
	unsubscribe := c.tr.Subscribe(func(m transport.Message) {
		switch m.Kind {
		case transport.KindBinary:
			mu.Lock()
			if !finished {
				buf = append(buf, m.Data...)
			}
			mu.Unlock()
		case transport.KindEnd:
			mu.Lock()
			audio := buf
			mu.Unlock()
			finish(outcome{audio: audio})
		case transport.KindError:
			finish(outcome{err: m.Err})
		case transport.KindClosed:
			finish(outcome{err: fmt.Errorf("synthesis stream closed: %w", m.Err)})
		}
	})
	defer unsubscribe()

	err = c.tr.SendJSON(ctx, protocol.SynthesisRequest{
		Text:         req.Text,
		Voice:        req.Voice,
		VoiceProfile: req.VoiceProfileID,
		RequestID:    req.RequestID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("send stream request: %w", err)
	}
	c.setState(req.RequestID, StateWSSent)

	timer := time.NewTimer(c.streamWait)
	defer timer.Stop()
	select {
	case o := <-done:
		if o.err != nil {
			return Result{}, o.err
		}
		return Result{RequestID: req.RequestID, Audio: o.audio, Format: "audio/wav", Mode: ModeStream}, nil
	case <-timer.C:
		c.tr.Drop()
		return Result{}, fmt.Errorf("synthesis stream timed out after %s", c.streamWait)
	case <-ctx.Done():
		c.tr.Drop()
		return Result{}, ctx.Err()
	}
}

func (c *Client) setState(id string, s State) {
	if c.hook != nil {
		c.hook(id, s)
	}
}
