// Package obswstest runs an in-process obs-websocket v5 server for tests.
// It understands the handshake (with optional password auth) and the media
// input requests focusflow sends.
package obswstest

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	challenge = "focusflow-challenge"
	salt      = "focusflow-salt"

	// closeAuthFailed is the obs-websocket close code for a bad password.
	closeAuthFailed = 4009
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Request is one request the server received.
type Request struct {
	Type string
	Data map[string]interface{}
}

type failure struct {
	code    int
	comment string
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Server simulates OBS.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	password string
	kinds    map[string]string // input name → kind
	states   map[string]string // input name → OBS_MEDIA_STATE_*
	failures map[string]failure
	silent   map[string]bool
	requests []Request
	conns    map[*conn]bool
}

// NewServer starts a server with no inputs and no password.
func NewServer() *Server {
	s := &Server{
		kinds:    make(map[string]string),
		states:   make(map[string]string),
		failures: make(map[string]failure),
		silent:   make(map[string]bool),
		conns:    make(map[*conn]bool),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Close stops the server and drops all clients.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

// SetPassword requires clients to authenticate.
func (s *Server) SetPassword(p string) {
	s.mu.Lock()
	s.password = p
	s.mu.Unlock()
}

// AddInput registers an input of the given kind. Media inputs start
// stopped.
func (s *Server) AddInput(name, kind string) {
	s.mu.Lock()
	s.kinds[name] = kind
	s.states[name] = "OBS_MEDIA_STATE_STOPPED"
	s.mu.Unlock()
}

// MediaState returns the current state of input.
func (s *Server) MediaState(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name]
}

// SetMediaState overrides the state of input without emitting events.
func (s *Server) SetMediaState(name, state string) {
	s.mu.Lock()
	s.states[name] = state
	s.mu.Unlock()
}

// Fail makes every requestType request fail with code.
func (s *Server) Fail(requestType string, code int, comment string) {
	s.mu.Lock()
	s.failures[requestType] = failure{code: code, comment: comment}
	s.mu.Unlock()
}

// Silence makes the server swallow requestType requests without replying.
func (s *Server) Silence(requestType string) {
	s.mu.Lock()
	s.silent[requestType] = true
	s.mu.Unlock()
}

// Requests returns the received requests of requestType, or all requests
// when requestType is empty.
func (s *Server) Requests(requestType string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if requestType == "" || r.Type == requestType {
			out = append(out, r)
		}
	}
	return out
}

// ConnectionCount returns the number of identified clients.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Emit sends an event to every identified client.
func (s *Server) Emit(eventType string, data map[string]interface{}) {
	msg := map[string]interface{}{
		"op": 5,
		"d": map[string]interface{}{
			"eventType":   eventType,
			"eventIntent": 1 << 8,
			"eventData":   data,
		},
	}
	for _, c := range s.snapshotConns() {
		_ = c.write(msg)
	}
}

// DropConnections closes every client connection, as OBS does on exit.
func (s *Server) DropConnections() {
	for _, c := range s.snapshotConns() {
		_ = c.ws.Close()
	}
}

func (s *Server) snapshotConns() []*conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	if !s.handshake(c) {
		return
	}

	s.mu.Lock()
	s.conns[c] = true
	s.mu.Unlock()

	for {
		var msg struct {
			Op int `json:"op"`
			D  struct {
				RequestType string                 `json:"requestType"`
				RequestID   string                 `json:"requestId"`
				RequestData map[string]interface{} `json:"requestData"`
			} `json:"d"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Op != 6 {
			continue
		}
		resp, events, ok := s.respond(msg.D.RequestType, msg.D.RequestID, msg.D.RequestData)
		if !ok {
			continue
		}
		if err := c.write(resp); err != nil {
			return
		}
		for _, ev := range events {
			s.Emit(ev.eventType, ev.data)
		}
	}
}

func (s *Server) handshake(c *conn) bool {
	s.mu.Lock()
	password := s.password
	s.mu.Unlock()

	hello := map[string]interface{}{
		"obsWebSocketVersion": "5.4.2",
		"rpcVersion":          1,
	}
	if password != "" {
		hello["authentication"] = map[string]string{"challenge": challenge, "salt": salt}
	}
	if err := c.write(map[string]interface{}{"op": 0, "d": hello}); err != nil {
		return false
	}

	var identify struct {
		Op int `json:"op"`
		D  struct {
			RPCVersion     int    `json:"rpcVersion"`
			Authentication string `json:"authentication"`
		} `json:"d"`
	}
	if err := c.ws.ReadJSON(&identify); err != nil || identify.Op != 1 {
		return false
	}
	if password != "" && identify.D.Authentication != expectedAuth(password) {
		c.mu.Lock()
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeAuthFailed, "Authentication failed."))
		c.mu.Unlock()
		return false
	}

	return c.write(map[string]interface{}{
		"op": 2,
		"d":  map[string]interface{}{"negotiatedRpcVersion": 1},
	}) == nil
}

func expectedAuth(password string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

type event struct {
	eventType string
	data      map[string]interface{}
}

func (s *Server) respond(requestType, requestID string, data map[string]interface{}) (map[string]interface{}, []event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, Request{Type: requestType, Data: data})
	if s.silent[requestType] {
		return nil, nil, false
	}

	status := map[string]interface{}{"result": true, "code": 100}
	var (
		body   interface{}
		events []event
	)

	fail := func(code int, comment string) {
		status = map[string]interface{}{"result": false, "code": code, "comment": comment}
	}

	if f, ok := s.failures[requestType]; ok {
		fail(f.code, f.comment)
	} else {
		inputName, _ := data["inputName"].(string)
		switch requestType {
		case "GetVersion":
			body = map[string]interface{}{"obsVersion": "30.1.2", "obsWebSocketVersion": "5.4.2"}

		case "GetInputList":
			inputs := make([]map[string]interface{}, 0, len(s.kinds))
			for name, kind := range s.kinds {
				inputs = append(inputs, map[string]interface{}{"inputName": name, "inputKind": kind})
			}
			body = map[string]interface{}{"inputs": inputs}

		case "GetMediaInputStatus":
			state, ok := s.states[inputName]
			if !ok {
				fail(600, "No source was found by the name of `"+inputName+"`.")
				break
			}
			body = map[string]interface{}{"mediaState": state, "mediaDuration": 3600000, "mediaCursor": 1000}

		case "TriggerMediaInputAction":
			if _, ok := s.states[inputName]; !ok {
				fail(600, "No source was found by the name of `"+inputName+"`.")
				break
			}
			action, _ := data["mediaAction"].(string)
			switch action {
			case "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PLAY", "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_RESTART":
				s.states[inputName] = "OBS_MEDIA_STATE_PLAYING"
			case "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PAUSE":
				s.states[inputName] = "OBS_MEDIA_STATE_PAUSED"
			case "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_STOP":
				s.states[inputName] = "OBS_MEDIA_STATE_STOPPED"
			default:
				fail(400, "unknown media action")
			}
			if status["result"] == true {
				events = append(events, event{
					eventType: "MediaInputActionTriggered",
					data:      map[string]interface{}{"inputName": inputName, "mediaAction": action},
				})
			}

		default:
			fail(204, "Your request type is not valid.")
		}
	}

	d := map[string]interface{}{
		"requestType":   requestType,
		"requestId":     requestID,
		"requestStatus": status,
	}
	if body != nil {
		d["responseData"] = body
	}
	return map[string]interface{}{"op": 7, "d": d}, events, true
}
