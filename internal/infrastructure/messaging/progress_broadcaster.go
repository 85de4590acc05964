// Package messaging pushes generation progress events to connected dashboard
// clients over websockets.
package messaging

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ProgressClient represents a single connected dashboard client watching one
// project's generation run.
type ProgressClient struct {
	Conn      *websocket.Conn
	ProjectID string
	Send      chan []byte
}

// ProgressEvent is one generation progress update sent to the frontend.
type ProgressEvent struct {
	ProjectID string    `json:"projectId"`
	Stage     string    `json:"stage"`
	PageIndex int       `json:"pageIndex,omitempty"`
	PageCount int       `json:"pageCount,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress stages emitted during a generation run.
const (
	StageResolving  = "resolving"
	StagePageReady  = "page_ready"
	StagePageFailed = "page_failed"
	StageRendering  = "rendering"
	StageUploading  = "uploading"
	StageComplete   = "complete"
	StageFailed     = "failed"
)

// ProgressBroadcaster manages connected clients keyed by project and fans out
// progress events.
type ProgressBroadcaster struct {
	projectClients map[string]map[*ProgressClient]bool
	register       chan *ProgressClient
	unregister     chan *ProgressClient
	events         chan ProgressEvent
	mu             sync.RWMutex
}

// NewProgressBroadcaster creates a new broadcaster instance.
func NewProgressBroadcaster() *ProgressBroadcaster {
	return &ProgressBroadcaster{
		projectClients: make(map[string]map[*ProgressClient]bool),
		register:       make(chan *ProgressClient),
		unregister:     make(chan *ProgressClient),
		events:         make(chan ProgressEvent, 64),
	}
}

// Run starts the broadcaster's main loop. This should be run as a goroutine.
func (b *ProgressBroadcaster) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			if _, ok := b.projectClients[client.ProjectID]; !ok {
				b.projectClients[client.ProjectID] = make(map[*ProgressClient]bool)
			}
			b.projectClients[client.ProjectID][client] = true
			b.mu.Unlock()
			log.Printf("Progress client registered for project: %s", client.ProjectID)

		case client := <-b.unregister:
			b.mu.Lock()
			if clients, ok := b.projectClients[client.ProjectID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(b.projectClients, client.ProjectID)
					}
				}
			}
			b.mu.Unlock()
			log.Printf("Progress client unregistered for project: %s", client.ProjectID)

		case event := <-b.events:
			b.fanOut(event)
		}
	}
}

// Register queues a client for registration.
func (b *ProgressBroadcaster) Register(client *ProgressClient) {
	b.register <- client
}

// Unregister queues a client for unregistration.
func (b *ProgressBroadcaster) Unregister(client *ProgressClient) {
	b.unregister <- client
}

// Publish emits a progress event. Never blocks the generation pipeline; if
// the event buffer is full the event is dropped.
func (b *ProgressBroadcaster) Publish(event ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case b.events <- event:
	default:
	}
}

func (b *ProgressBroadcaster) fanOut(event ProgressEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling progress event for project %s: %v", event.ProjectID, err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if clients, ok := b.projectClients[event.ProjectID]; ok {
		for client := range clients {
			select {
			case client.Send <- message:
			default:
			}
		}
	}
}

// WritePump drains a client's send channel onto its websocket connection.
// Runs as one goroutine per client.
func (c *ProgressClient) WritePump(b *ProgressBroadcaster) {
	defer func() {
		b.Unregister(c)
		c.Conn.Close()
	}()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
