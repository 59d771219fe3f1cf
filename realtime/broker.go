package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientBuffer   = 32
	keepAlive      = 25 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// Envelope is the JSON shape of every event sent to live clients
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type message struct {
	event string
	data  []byte
}

// Broker fans change events out to Server-Sent Events and WebSocket clients
type Broker struct {
	clients    map[chan message]bool
	register   chan chan message
	unregister chan chan message
	broadcast  chan message
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewBroker creates a new broker
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan message]bool),
		register:   make(chan chan message),
		unregister: make(chan chan message),
		broadcast:  make(chan message, 1000),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run dispatches registrations and broadcasts until ctx is cancelled
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client)
			}
			b.mu.Unlock()
			close(b.done)
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			total := len(b.clients)
			b.mu.Unlock()
			log.Printf("Live client connected. Total: %d", total)

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
				log.Printf("Live client disconnected. Total: %d", len(b.clients))
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Slow client: drop rather than block every other subscriber
				}
			}
			b.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected live clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish encodes payload into an envelope and queues it for every client
func (b *Broker) Publish(_ context.Context, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshalling %s payload: %v", event, err)
		return
	}
	b.publishRaw(event, raw)
}

// publishRaw queues an already-encoded payload
func (b *Broker) publishRaw(event string, payload json.RawMessage) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("Error marshalling broadcast message: %v", err)
		return
	}

	select {
	case b.broadcast <- message{event: event, data: data}:
	default:
		log.Printf("⚠️  Broadcast buffer full, dropping %s", event)
	}
}

func (b *Broker) subscribe(ctx context.Context) (chan message, bool) {
	client := make(chan message, clientBuffer)
	select {
	case b.register <- client:
		return client, true
	case <-ctx.Done():
		return nil, false
	case <-b.done:
		return nil, false
	}
}

func (b *Broker) unsubscribe(client chan message) {
	select {
	case b.unregister <- client:
	case <-b.done:
	}
}

func connectedMessage() message {
	payload, _ := json.Marshal(map[string]string{"client_id": uuid.NewString()})
	data, _ := json.Marshal(Envelope{Event: "connected", Payload: payload})
	return message{event: "connected", data: data}
}

// ServeHTTP streams events as Server-Sent Events
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client, ok := b.subscribe(r.Context())
	if !ok {
		return
	}
	defer b.unsubscribe(client)

	writeSSE(w, connectedMessage())
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-client:
			if !open {
				return
			}
			writeSSE(w, msg)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, msg message) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.event, msg.data)
}

// ServeWS streams the same envelopes over a WebSocket connection
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client, ok := b.subscribe(ctx)
	if !ok {
		return
	}
	defer b.unsubscribe(client)

	// Reader: the channel is one-way, inbound frames are only drained to detect close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeWS(conn, connectedMessage()); err != nil {
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, open := <-client:
			if !open {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
				return
			}
			if err := writeWS(conn, msg); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, msg message) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, msg.data)
}
