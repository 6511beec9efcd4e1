package ws

import (
	"context"
	"sync"
)

const (
	hubQueueSize  = 64
	peerQueueSize = 16
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans payloads out to subscribers grouped by topic. Each subscriber
// has its own outbound queue; one that falls behind is disconnected.
type Hub struct {
	clients   map[string]map[Subscriber]*peer
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	closeOnce sync.Once
}

type peer struct {
	sub Subscriber
	out chan []byte
}

type message struct {
	topic   string
	payload []byte
}

type subscription struct {
	topic  string
	client Subscriber
}

type countRequest struct {
	topic string
	reply chan int
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*peer),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, hubQueueSize),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for _, peers := range h.clients {
				for _, p := range peers {
					close(p.out)
					p.sub.Close()
				}
			}
			h.clients = nil
			return
		case sub := <-h.register:
			peers, ok := h.clients[sub.topic]
			if !ok {
				peers = make(map[Subscriber]*peer)
				h.clients[sub.topic] = peers
			}
			if _, exists := peers[sub.client]; exists {
				continue
			}
			p := &peer{sub: sub.client, out: make(chan []byte, peerQueueSize)}
			peers[sub.client] = p
			go h.write(sub.topic, p)
		case sub := <-h.unreg:
			h.remove(sub.topic, sub.client)
		case req := <-h.count:
			req.reply <- len(h.clients[req.topic])
		case msg := <-h.broadcast:
			for _, p := range h.clients[msg.topic] {
				select {
				case p.out <- msg.payload:
				default:
					h.remove(msg.topic, p.sub)
					p.sub.Close()
				}
			}
		}
	}
}

// remove must only be called from run.
func (h *Hub) remove(topic string, client Subscriber) {
	peers, ok := h.clients[topic]
	if !ok {
		return
	}
	p, ok := peers[client]
	if !ok {
		return
	}
	delete(peers, client)
	close(p.out)
	if len(peers) == 0 {
		delete(h.clients, topic)
	}
}

// write delivers queued payloads to one subscriber until its queue closes.
func (h *Hub) write(topic string, p *peer) {
	for payload := range p.out {
		if err := p.sub.Send(payload); err != nil {
			h.Unregister(topic, p.sub)
			p.sub.Close()
			for range p.out {
			}
			return
		}
	}
}

// Register adds a client to a topic.
func (h *Hub) Register(topic string, client Subscriber) {
	select {
	case h.register <- subscription{topic: topic, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client. The caller still owns closing it.
func (h *Hub) Unregister(topic string, client Subscriber) {
	select {
	case h.unreg <- subscription{topic: topic, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every client of topic. It is a no-op after Close.
func (h *Hub) Broadcast(topic string, payload []byte) {
	_ = h.BroadcastContext(context.Background(), topic, payload)
}

// BroadcastContext is Broadcast bounded by ctx. It returns ctx.Err() if the
// hub queue stays full until ctx is done.
func (h *Hub) BroadcastContext(ctx context.Context, topic string, payload []byte) error {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribers returns the number of clients on topic.
func (h *Hub) Subscribers(topic string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{topic: topic, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close disconnects every client and stops the dispatch loop.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
