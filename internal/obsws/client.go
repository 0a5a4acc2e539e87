// Package obsws is a minimal obs-websocket v5 client focused on media
// inputs: it identifies (with optional password auth), sends requests and
// tracks media playback events for one input.
package obsws

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/focusflow/internal/diaglog"
	"github.com/tiroq/focusflow/internal/log"
)

var (
	// ErrNotConnected is returned by requests issued before identification
	// or after the connection dropped.
	ErrNotConnected = errors.New("obs: not connected")
	// ErrAlreadyConnected is returned by Connect on a live client.
	ErrAlreadyConnected = errors.New("obs: already connected")
)

// requestTimeout bounds every request and handshake step.
const requestTimeout = 10 * time.Second

// MediaState is the cached playback view of the watched media input.
type MediaState struct {
	Input       string    `json:"input"`
	Playing     bool      `json:"playing"`
	MediaState  string    `json:"media_state,omitempty"` // OBS_MEDIA_STATE_*
	OBSStatus   string    `json:"obs_status"`            // "connected", "disconnected"
	OBSVersion  string    `json:"obs_version,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Client represents an OBS WebSocket v5 client
type Client struct {
	url      string
	password string

	mu         sync.RWMutex
	conn       *websocket.Conn
	writeMu    sync.Mutex
	connected  bool
	identified bool

	requestID  uint64
	idMu       sync.Mutex
	responses  map[string]chan *Response
	responseMu sync.Mutex

	logger   *diaglog.Logger
	loggerMu sync.RWMutex

	handlersMu     sync.RWMutex
	onMediaChanged func(input string, playing bool)
	onDisconnected func()

	state   MediaState
	stateMu sync.RWMutex

	reconnectMu      sync.Mutex
	reconnectEnabled bool
	reconnectDelay   time.Duration
	stopChan         chan struct{}
	stopOnce         sync.Once

	identifiedChan chan struct{}
	helloChan      chan *HelloData
	helloErrChan   chan error
}

// Message is the obs-websocket envelope.
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type HelloData struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type IdentifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type Request struct {
	RequestType string      `json:"requestType"`
	RequestID   string      `json:"requestId"`
	RequestData interface{} `json:"requestData,omitempty"`
}

type RequestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

type Response struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus RequestStatus   `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData,omitempty"`
}

type Event struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// OpCodes for WebSocket protocol
const (
	OpHello           = 0
	OpIdentify        = 1
	OpIdentified      = 2
	OpEvent           = 5
	OpRequest         = 6
	OpRequestResponse = 7
)

// Event subscription flags
const (
	EventSubscriptionGeneral     = 1 << 0
	EventSubscriptionInputs      = 1 << 3
	EventSubscriptionMediaInputs = 1 << 8
)

// RequestError is a request OBS answered with result=false.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RequestError) Error() string {
	if e.Code == 600 {
		return fmt.Sprintf("obs: %s: resource not found (code 600): %s", e.RequestType, e.Comment)
	}
	return fmt.Sprintf("obs: %s failed (code %d): %s", e.RequestType, e.Code, e.Comment)
}

// NewClient creates a new OBS WebSocket client watching media input input.
func NewClient(url, password, input string) *Client {
	return &Client{
		url:              url,
		password:         password,
		responses:        make(map[string]chan *Response),
		reconnectEnabled: true,
		reconnectDelay:   5 * time.Second,
		stopChan:         make(chan struct{}),
		identifiedChan:   make(chan struct{}, 1),
		helloChan:        make(chan *HelloData, 1),
		helloErrChan:     make(chan error, 1),
		state: MediaState{
			Input:       input,
			OBSStatus:   "disconnected",
			LastUpdated: time.Now(),
		},
	}
}

// Connect establishes the WebSocket connection and identifies.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()
	c.drainHandshake()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.updateOBSStatus("disconnected", "")
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readMessages(conn)

	select {
	case hello := <-c.helloChan:
		return c.identify(ctx, hello)
	case err := <-c.helloErrChan:
		c.disconnect()
		return err
	case <-ctx.Done():
		c.disconnect()
		return ctx.Err()
	case <-time.After(requestTimeout):
		c.disconnect()
		return fmt.Errorf("timeout waiting for Hello message")
	}
}

// drainHandshake drops signals left over from a previous connection.
func (c *Client) drainHandshake() {
	for {
		select {
		case <-c.helloChan:
		case <-c.helloErrChan:
		case <-c.identifiedChan:
		default:
			return
		}
	}
}

// authResponse computes base64(sha256(base64(sha256(password+salt))+challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

func (c *Client) identify(ctx context.Context, hello *HelloData) error {
	identify := IdentifyData{
		RPCVersion:         1,
		EventSubscriptions: EventSubscriptionGeneral | EventSubscriptionInputs | EventSubscriptionMediaInputs,
	}
	if hello.Authentication.Challenge != "" {
		if c.password == "" {
			c.disconnect()
			return fmt.Errorf("obs requires a password but none is configured")
		}
		identify.Authentication = authResponse(c.password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}

	msg := Message{Op: OpIdentify}
	msg.D, _ = json.Marshal(identify)
	if err := c.writeJSON(msg); err != nil {
		c.disconnect()
		return err
	}

	select {
	case <-c.identifiedChan:
		c.mu.Lock()
		c.identified = true
		c.mu.Unlock()
		c.updateOBSStatus("connected", hello.OBSWebSocketVersion)
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventPlayerConnect,
			Payload: map[string]interface{}{"url": c.url, "obs_ws_version": hello.OBSWebSocketVersion},
		})
		return nil
	case err := <-c.helloErrChan:
		c.disconnect()
		return fmt.Errorf("identify rejected: %w", err)
	case <-ctx.Done():
		c.disconnect()
		return ctx.Err()
	case <-time.After(requestTimeout):
		c.disconnect()
		return fmt.Errorf("timeout waiting for Identified message (wrong password?)")
	}
}

// readMessages reads and dispatches messages for one connection.
func (c *Client) readMessages(conn *websocket.Conn) {
	defer func() {
		c.mu.RLock()
		current := c.conn == conn
		c.mu.RUnlock()
		if !current {
			return
		}
		c.disconnect()
		if c.shouldReconnect() {
			go c.reconnect()
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			// Unblocks a Connect still waiting on the handshake.
			select {
			case c.helloErrChan <- fmt.Errorf("obs closed the connection: %w", err):
			default:
			}
			select {
			case <-c.stopChan:
			default:
				c.handlersMu.RLock()
				handler := c.onDisconnected
				c.handlersMu.RUnlock()
				if handler != nil {
					handler()
				}
			}
			return
		}

		switch msg.Op {
		case OpHello:
			var hello HelloData
			if err := json.Unmarshal(msg.D, &hello); err != nil {
				select {
				case c.helloErrChan <- fmt.Errorf("invalid Hello: %w", err):
				default:
				}
				return
			}
			select {
			case c.helloChan <- &hello:
			default:
			}

		case OpIdentified:
			select {
			case c.identifiedChan <- struct{}{}:
			default:
			}

		case OpEvent:
			var event Event
			if err := json.Unmarshal(msg.D, &event); err == nil {
				c.handleEvent(&event)
			}

		case OpRequestResponse:
			var resp Response
			if err := json.Unmarshal(msg.D, &resp); err == nil {
				c.handleResponse(&resp)
			}
		}
	}
}

// handleEvent tracks playback of the watched input.
func (c *Client) handleEvent(event *Event) {
	var data struct {
		InputName   string `json:"inputName"`
		MediaAction string `json:"mediaAction"`
	}
	if len(event.EventData) > 0 {
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
	}

	var playing bool
	switch event.EventType {
	case "MediaInputPlaybackStarted":
		playing = true
	case "MediaInputPlaybackEnded":
		playing = false
	case "MediaInputActionTriggered":
		switch data.MediaAction {
		case MediaActionPlay, MediaActionRestart:
			playing = true
		case MediaActionPause, MediaActionStop:
			playing = false
		default:
			return
		}
	default:
		return
	}

	c.stateMu.Lock()
	if data.InputName != c.state.Input {
		c.stateMu.Unlock()
		return
	}
	c.state.Playing = playing
	c.state.LastUpdated = time.Now()
	input := c.state.Input
	c.stateMu.Unlock()

	c.handlersMu.RLock()
	handler := c.onMediaChanged
	c.handlersMu.RUnlock()
	if handler != nil {
		handler(input, playing)
	}
}

// handleResponse routes responses to waiting request channels
func (c *Client) handleResponse(resp *Response) {
	c.responseMu.Lock()
	ch, ok := c.responses[resp.RequestID]
	c.responseMu.Unlock()
	if !ok {
		log.Debug("obs response without waiter", "request_id", resp.RequestID, "request_type", resp.RequestType)
		return
	}
	ch <- resp
}

// sendRequest sends a request and waits for its response.
func (c *Client) sendRequest(ctx context.Context, requestType string, requestData interface{}) (*Response, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	c.idMu.Lock()
	c.requestID++
	requestID := strconv.FormatUint(c.requestID, 10)
	c.idMu.Unlock()

	msg := Message{Op: OpRequest}
	msg.D, _ = json.Marshal(Request{
		RequestType: requestType,
		RequestID:   requestID,
		RequestData: requestData,
	})

	respChan := make(chan *Response, 1)
	c.responseMu.Lock()
	c.responses[requestID] = respChan
	c.responseMu.Unlock()
	defer func() {
		c.responseMu.Lock()
		delete(c.responses, requestID)
		c.responseMu.Unlock()
	}()

	if err := c.writeJSON(msg); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", requestType, err)
	}

	select {
	case resp := <-respChan:
		if !resp.RequestStatus.Result {
			return nil, &RequestError{
				RequestType: requestType,
				Code:        resp.RequestStatus.Code,
				Comment:     resp.RequestStatus.Comment,
			}
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("request timeout after %s (request: %s)", requestTimeout, requestType)
	}
}

func (c *Client) writeJSON(v interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// disconnect closes the WebSocket connection
func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.identified = false
	c.mu.Unlock()

	if conn != nil {
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventPlayerDisconnect,
			Payload: map[string]interface{}{"url": c.url},
		})
		if err := conn.Close(); err != nil {
			log.Debug("failed to close obs connection", "error", err)
		}
	}
	c.updateOBSStatus("disconnected", "")
}

func (c *Client) shouldReconnect() bool {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	select {
	case <-c.stopChan:
		return false
	default:
	}
	return c.reconnectEnabled
}

// reconnect retries Connect with exponential backoff and jitter. It never
// issues media commands; the next engine transition does that.
func (c *Client) reconnect() {
	c.reconnectMu.Lock()
	delay := c.reconnectDelay
	c.reconnectMu.Unlock()
	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
			attempt++
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventPlayerReconnect,
				Payload: map[string]interface{}{"attempt": attempt, "delay_ms": delay.Milliseconds()},
			})

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			err := c.Connect(ctx)
			cancel()
			if err == nil || errors.Is(err, ErrAlreadyConnected) {
				log.Info("reconnected to obs", "attempt", attempt)
				return
			}
			log.Warn("obs reconnect failed", "attempt", attempt, "error", err)

			delay = nextBackoff(delay)
		}
	}
}

// nextBackoff doubles delay up to 60s and adds ±10% jitter, never going
// below one second.
func nextBackoff(delay time.Duration) time.Duration {
	delay *= 2
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	jitter := time.Duration(float64(delay) * 0.2 * (rand.Float64() - 0.5))
	delay += jitter
	if delay < time.Second {
		delay = time.Second
	}
	return delay
}

// updateOBSStatus updates the OBS connection status
func (c *Client) updateOBSStatus(status, version string) {
	c.stateMu.Lock()
	c.state.OBSStatus = status
	c.state.OBSVersion = version
	c.state.LastUpdated = time.Now()
	c.stateMu.Unlock()
}

// Disconnect gracefully closes connection and stops reconnection
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.disconnect()
}

// SetLogger injects a diaglog.Logger. Passing nil disables structured
// logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentPlayer
	}
	l.Log(entry)
}

// SetReconnectEnabled enables/disables automatic reconnection
func (c *Client) SetReconnectEnabled(enabled bool) {
	c.reconnectMu.Lock()
	c.reconnectEnabled = enabled
	c.reconnectMu.Unlock()
}

// SetReconnectDelay sets the initial reconnect delay.
func (c *Client) SetReconnectDelay(d time.Duration) {
	c.reconnectMu.Lock()
	c.reconnectDelay = d
	c.reconnectMu.Unlock()
}

// OnMediaChanged registers a callback for playback changes of the watched
// input, including changes made by hand in OBS.
func (c *Client) OnMediaChanged(handler func(input string, playing bool)) {
	c.handlersMu.Lock()
	c.onMediaChanged = handler
	c.handlersMu.Unlock()
}

// OnDisconnected registers callback for disconnection events
func (c *Client) OnDisconnected(handler func()) {
	c.handlersMu.Lock()
	c.onDisconnected = handler
	c.handlersMu.Unlock()
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.identified
}

// MediaState returns the cached media state.
func (c *Client) MediaState() MediaState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}
