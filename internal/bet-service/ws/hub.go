package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-api/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// client serializa as escritas numa conexão (gorilla não aceita writers concorrentes)
type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *client) send(m ServerMsg) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(m)
}

// Hub mantém as assinaturas matchID -> conexões
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria o hub com a política de origem informada
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS atende uma conexão até o cliente desconectar
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.MatchID == "" {
				_ = c.send(ServerMsg{Type: "error", Message: "matchId required"})
				continue
			}
			h.subscribe(c, msg.MatchID)
		case "unsubscribe":
			h.unsubscribe(c, msg.MatchID)
		case "ping":
			_ = c.send(ServerMsg{Type: "pong"})
		default:
			_ = c.send(ServerMsg{Type: "error", Message: "unknown message type"})
		}
	}
}

func (h *Hub) subscribe(c *client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[matchID]; !ok {
		h.subs[matchID] = make(map[*client]struct{})
	}
	h.subs[matchID][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[matchID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, matchID)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// Subscribers retorna quantas conexões acompanham a partida
func (h *Hub) Subscribers(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[matchID])
}

// Broadcast envia a atualização para os inscritos na partida
func (h *Hub) Broadcast(u events.OddsUpdate) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[u.MatchID]))
	for c := range h.subs[u.MatchID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := ServerMsg{Type: "odds_update", MatchID: u.MatchID, Payload: &u}
	for _, c := range targets {
		if err := c.send(msg); err != nil {
			h.log.Debug("ws write failed", zap.String("match_id", u.MatchID), zap.Error(err))
		}
	}
}
