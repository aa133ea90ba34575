package httpapi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxConcurrentCompilesPerSession = 3
	sessionHeartbeatTimeout         = 5 * time.Minute
	sessionPingInterval             = 4 * time.Minute
	sessionMaxMessageBytes          = 1 << 20 // 1 MiB
)

var sessionUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Accepts all origins; a deployment fronted by a specific web client
	// should narrow this.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sessionRegistry counts active compile sessions; nothing reads the count,
// and each session otherwise runs independently — this
// protocol is point-to-point request/reply, not a fan-out broadcaster.
type sessionRegistry struct {
	mu    sync.Mutex
	count int
}

func newSessionRegistry() *sessionRegistry { return &sessionRegistry{} }

func (r *sessionRegistry) register() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func (r *sessionRegistry) unregister() {
	r.mu.Lock()
	r.count--
	r.mu.Unlock()
}

// wsIncoming is a client-sent session message.
type wsIncoming struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Request *CompileRequest `json:"request,omitempty"`
}

// wsOutgoing is a server-sent session message.
type wsOutgoing struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// compileSession is one WebSocket connection's compile protocol state:
// how many compiles it currently has in flight and how to cancel each by
// client-assigned id.
type compileSession struct {
	server  *Server
	conn    *websocket.Conn
	writeMu sync.Mutex
	active  int32
	cancels sync.Map // id string -> context.CancelFunc
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := sessionUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.sessions.register()
	defer s.sessions.unregister()

	session := &compileSession{server: s, conn: conn}
	session.run()
}

func (cs *compileSession) send(msg wsOutgoing) {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	cs.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := cs.conn.WriteJSON(msg); err != nil {
		cs.server.logger.Debug("websocket write failed", "error", err)
	}
}

func (cs *compileSession) run() {
	defer cs.conn.Close()

	cs.conn.SetReadLimit(sessionMaxMessageBytes)
	cs.conn.SetReadDeadline(time.Now().Add(sessionHeartbeatTimeout))
	cs.conn.SetPongHandler(func(string) error {
		cs.conn.SetReadDeadline(time.Now().Add(sessionHeartbeatTimeout))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go cs.pingLoop(stopPing)

	cs.send(wsOutgoing{Type: "welcome"})

	for {
		var incoming wsIncoming
		if err := cs.conn.ReadJSON(&incoming); err != nil {
			return
		}
		cs.handleIncoming(incoming)
	}
}

func (cs *compileSession) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(sessionPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cs.writeMu.Lock()
			cs.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := cs.conn.WriteMessage(websocket.PingMessage, nil)
			cs.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (cs *compileSession) handleIncoming(msg wsIncoming) {
	switch msg.Type {
	case "ping":
		cs.send(wsOutgoing{Type: "pong"})
	case "compile":
		cs.startCompile(msg)
	case "cancel":
		if cancel, ok := cs.cancels.Load(msg.ID); ok {
			cancel.(context.CancelFunc)()
		}
	default:
		cs.send(wsOutgoing{Type: "error", ID: msg.ID, Payload: map[string]string{"message": "unknown message type"}})
	}
}

func (cs *compileSession) startCompile(msg wsIncoming) {
	if msg.Request == nil || msg.Request.Configuration == nil {
		cs.send(wsOutgoing{Type: "error", ID: msg.ID, Payload: map[string]string{"message": "compile requires a configuration"}})
		return
	}
	if atomic.LoadInt32(&cs.active) >= maxConcurrentCompilesPerSession {
		cs.send(wsOutgoing{Type: "error", ID: msg.ID, Payload: map[string]string{"message": "too many concurrent compiles on this session"}})
		return
	}
	atomic.AddInt32(&cs.active, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cs.cancels.Store(msg.ID, cancel)

	go func() {
		defer func() {
			atomic.AddInt32(&cs.active, -1)
			cs.cancels.Delete(msg.ID)
			cancel()
		}()

		cs.send(wsOutgoing{Type: "compile:started", ID: msg.ID})

		collector := newSSECollector()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for event := range collector.Chan() {
				cs.send(wsOutgoing{Type: "event", ID: msg.ID, Payload: map[string]interface{}{
					"name":  sseEventName(event),
					"event": event,
				}})
			}
		}()

		outcome, err := cs.server.runCompile(ctx, *msg.Request, collector)
		collector.Close()
		<-done

		switch {
		case err != nil:
			cs.send(wsOutgoing{Type: "compile:error", ID: msg.ID, Payload: map[string]string{"message": err.Error()}})
		case outcome.result != nil && outcome.result.Cancelled:
			cs.send(wsOutgoing{Type: "compile:cancelled", ID: msg.ID})
		default:
			cs.send(wsOutgoing{Type: "compile:complete", ID: msg.ID, Payload: responseFromResult(outcome.result)})
		}
	}()
}
