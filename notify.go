/*
Copyright © 2026 iknowur contributors
*/

package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Change notification is best-effort fan-out: every successful mutation of a
// party broadcasts a partyChanged event to sessions watching that party.
// Delivery is never required for correctness; the authoritative state is
// always re-fetchable, so slow or broken clients are simply dropped.

// PartyChangedMessage tells a watching session to re-fetch.
type PartyChangedMessage struct {
	Type    string    `json:"type"` // "partyChanged"
	PartyID string    `json:"partyId"`
	At      time.Time `json:"at"`
}

type NotifyClient struct {
	conn *websocket.Conn
	send chan any
}

// Room fans events out to every session watching one party.
type Room struct {
	id      string
	clients map[*NotifyClient]bool

	register chan *NotifyClient
	unreg    chan *NotifyClient

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newRoom(partyID string) *Room {
	now := time.Now()
	return &Room{
		id:         partyID,
		clients:    make(map[*NotifyClient]bool),
		register:   make(chan *NotifyClient),
		unreg:      make(chan *NotifyClient),
		createdAt:  now,
		lastActive: now,
	}
}

func (room *Room) run() {
	for {
		select {
		case c := <-room.register:
			room.mu.Lock()
			room.lastActive = time.Now()
			room.clients[c] = true
			room.mu.Unlock()

		case c := <-room.unreg:
			room.mu.Lock()
			room.lastActive = time.Now()
			if _, ok := room.clients[c]; ok {
				delete(room.clients, c)
				close(c.send)
			}
			room.mu.Unlock()
		}
	}
}

// broadcast sends to every client in the room, dropping any whose send
// buffer is full rather than blocking the caller.
func (room *Room) broadcast(msg any) {
	room.mu.Lock()
	defer room.mu.Unlock()

	room.lastActive = time.Now()

	for client := range room.clients {
		select {
		case client.send <- msg:
		default:
			delete(room.clients, client)
			close(client.send)
		}
	}
}

// closeAll disconnects all clients of this room (used by reaper).
func (room *Room) closeAll() {
	room.mu.Lock()
	defer room.mu.Unlock()

	for c := range room.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(room.clients, c)
	}
}

// Notifier holds a set of rooms keyed by party id, so each party's watchers
// are an isolated session.
type Notifier struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newNotifier(idleTimeout time.Duration) *Notifier {
	n := &Notifier{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go n.reaperLoop()
	}
	return n
}

func (n *Notifier) room(partyID string) *Room {
	n.mu.Lock()
	defer n.mu.Unlock()

	if room, ok := n.rooms[partyID]; ok {
		return room
	}

	room := newRoom(partyID)
	n.rooms[partyID] = room
	go room.run()
	return room
}

// PartyChanged fans a change event out to any sessions watching the party.
// No watchers, no work: rooms are only created by websocket connections.
func (n *Notifier) PartyChanged(partyID string) {
	n.mu.Lock()
	room, ok := n.rooms[partyID]
	n.mu.Unlock()

	if !ok {
		return
	}

	room.broadcast(PartyChangedMessage{
		Type:    "partyChanged",
		PartyID: partyID,
		At:      time.Now(),
	})
}

// reaperLoop periodically removes rooms that have been idle longer than
// idleTimeout. Safe because the protocol is level-triggered: a reconnecting
// client re-fetches and gets a fresh room.
func (n *Notifier) reaperLoop() {
	ticker := time.NewTicker(n.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-n.idleTimeout)

		n.mu.Lock()
		for id, room := range n.rooms {
			room.mu.RLock()
			last := room.lastActive
			room.mu.RUnlock()

			if last.Before(cutoff) {
				delete(n.rooms, id)
				go room.closeAll()
			}
		}
		n.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveNotifyWS upgrades a watcher onto the party's room. Room join is a
// thin pass-through: the route names the party, and inbound messages (the
// client's joinParty handshake included) are drained and ignored.
func serveNotifyWS(cfg *Config, store *Store, n *Notifier) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		partyID := ps.ByName("partyid")
		if partyID == "" || store.get(partyID) == nil {
			http.Error(w, "party not found", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &NotifyClient{
			conn: conn,
			send: make(chan any, 8),
		}

		room := n.room(partyID)
		room.register <- client

		logf(cfg, "NOTIFY: Watcher connected to party %s", partyID)

		go client.writePump()
		client.readPump(room)
	}
}

func (c *NotifyClient) readPump(room *Room) {
	defer func() {
		room.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *NotifyClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
