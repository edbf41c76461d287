package emby

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"embymirror/internal/events"
)

// The server pushes session updates on this interval once SessionsStart has
// been sent.
const sessionsStartData = "0,1500"

const defaultReconnectDelay = 10 * time.Second

type wsInbound struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data"`
}

type wsOutbound struct {
	MessageType string `json:"MessageType"`
	Data        string `json:"Data"`
}

// Socket owns the persistent websocket connection to the server. Inbound
// messages are dispatched to the registry by their MessageType; the
// connection is redialed after a constant delay whenever it drops, until
// Close is called.
type Socket struct {
	conn     Connection
	registry *events.Registry
	dialer   *websocket.Dialer

	// constant between attempts, no backoff
	reconnectDelay time.Duration

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	mu sync.Mutex
	ws *websocket.Conn
}

func NewSocket(conn Connection, registry *events.Registry) *Socket {
	return &Socket{
		conn:           conn,
		registry:       registry,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: defaultReconnectDelay,
		done:           make(chan struct{}),
	}
}

// URL returns the websocket endpoint, authenticated via query parameters.
func (s *Socket) URL() string {
	scheme := "ws"
	if s.conn.SSL {
		scheme = "wss"
	}
	deviceID := s.conn.DeviceID
	if deviceID == "" {
		deviceID = "embymirror"
	}
	return fmt.Sprintf("%s://%s:%d/embywebsocket?api_key=%s&deviceId=%s",
		scheme, s.conn.Host, s.conn.Port, url.QueryEscape(s.conn.APIKey), url.QueryEscape(deviceID))
}

// Listen registers a listener for a server-pushed event type. Available at
// any time; registrations survive reconnects.
func (s *Socket) Listen(t events.Type, fn events.Listener) {
	s.registry.Subscribe(t, fn)
}

// Start launches the background connect/receive loop.
func (s *Socket) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		go s.run(ctx)
	})
}

// Close stops the loop, waits for it, closes the live connection and clears
// all listener registrations.
func (s *Socket) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.mu.Lock()
	if s.ws != nil {
		s.ws.Close()
		s.ws = nil
	}
	s.mu.Unlock()
	s.registry.Clear()
}

func (s *Socket) run(ctx context.Context) {
	defer close(s.done)
	for {
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("emby ws: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Socket) connect(ctx context.Context) error {
	ws, _, err := s.dialer.DialContext(ctx, s.URL(), nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.ws = nil
		s.mu.Unlock()
		ws.Close()
	}()

	if err := ws.WriteJSON(wsOutbound{MessageType: "SessionsStart", Data: sessionsStartData}); err != nil {
		return err
	}

	// Ping goroutine
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := ws.WriteControl(
					websocket.PingMessage, nil,
					time.Now().Add(5*time.Second),
				); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		s.dispatch(msg)
	}
}

func (s *Socket) dispatch(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("emby ws: discarding undecodable message: %v", err)
		return
	}
	if msg.MessageType == "" {
		return
	}
	s.registry.Notify(events.Type(msg.MessageType), msg.Data)
}
