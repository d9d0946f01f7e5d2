package httpapi

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/vending-kiosk/internal/obs"
)

// changeEvent tells connected views to re-fetch.
type changeEvent struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
}

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	conn  *websocket.Conn
	hello []byte
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct{ conn *websocket.Conn }

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct{ data []byte }

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct{ replyCh chan int }

func (cmdClientCount) hubCmd() {}

type cmdStop struct{ done chan struct{} }

func (cmdStop) hubCmd() {}

// clientWriter owns all writes to one connection.
type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg := <-cw.sendCh:
			_ = cw.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) send(msg []byte) {
	select {
	case cw.sendCh <- msg:
	default:
		// Slow reader; it will catch up on the next change.
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	_ = cw.conn.Close()
}

// Hub fans change events out to every connected kiosk view. All state is
// owned by the run goroutine.
type Hub struct {
	cmdCh   chan hubCmd
	clients map[*websocket.Conn]*clientWriter
	stopped chan struct{}
}

func NewHub() *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clients: make(map[*websocket.Conn]*clientWriter),
		stopped: make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			cw := newClientWriter(c.conn)
			h.clients[c.conn] = cw
			cw.send(c.hello)
			obs.Logger.Debug("ws_client_registered", "clients", len(h.clients))
		case cmdUnregister:
			if cw, ok := h.clients[c.conn]; ok {
				cw.stop()
				delete(h.clients, c.conn)
				obs.Logger.Debug("ws_client_unregistered", "clients", len(h.clients))
			}
		case cmdBroadcast:
			for _, cw := range h.clients {
				cw.send(c.data)
			}
		case cmdClientCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			for conn, cw := range h.clients {
				cw.stop()
				delete(h.clients, conn)
			}
			close(h.stopped)
			close(c.done)
			return
		}
	}
}

func (h *Hub) send(cmd hubCmd) bool {
	select {
	case <-h.stopped:
		return false
	case h.cmdCh <- cmd:
		return true
	}
}

// Register starts pushing events to conn, beginning with version.
func (h *Hub) Register(conn *websocket.Conn, version uint64) {
	hello, _ := json.Marshal(changeEvent{Type: "changed", Version: version})
	if !h.send(cmdRegister{conn: conn, hello: hello}) {
		_ = conn.Close()
	}
}

func (h *Hub) Unregister(conn *websocket.Conn) { h.send(cmdUnregister{conn: conn}) }

// Changed broadcasts a change event carrying version.
func (h *Hub) Changed(version uint64) {
	data, _ := json.Marshal(changeEvent{Type: "changed", Version: version})
	h.send(cmdBroadcast{data: data})
}

func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	if !h.send(cmdClientCount{replyCh: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.stopped:
		return 0
	}
}

// Stop closes every connection and ends the hub.
func (h *Hub) Stop() {
	done := make(chan struct{})
	if h.send(cmdStop{done: done}) {
		select {
		case <-done:
		case <-h.stopped:
		}
	}
}
