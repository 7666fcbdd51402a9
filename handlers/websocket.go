package handlers

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"

	"photoman/auth"
	"photoman/backend"
	"photoman/logger"
	"photoman/metrics"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type VideoLister interface {
	Videos(ctx context.Context, userID uint64) ([]string, error)
}

// ConnectedClient is one open socket, refresh asks its watcher to reload now
type ConnectedClient struct {
	refresh chan struct{}
}

// ConnectedClients is needed as a user may be connected more than once
type ConnectedClients []*ConnectedClient

// VideoHub pushes a user's video list to their open sockets
type VideoHub struct {
	lister   VideoLister
	interval time.Duration
	users    cmap.ConcurrentMap[string, ConnectedClients]
}

func NewVideoHub(lister VideoLister, interval time.Duration) *VideoHub {
	return &VideoHub{
		lister:   lister,
		interval: interval,
		users:    cmap.New[ConnectedClients](),
	}
}

func socketID(userID uint64) string {
	return strconv.FormatUint(userID, 10)
}

func (h *VideoHub) addClient(id string, c *ConnectedClient) {
	h.users.Upsert(id, ConnectedClients{c}, func(exist bool, valueInMap, newValue ConnectedClients) ConnectedClients {
		if exist {
			return append(valueInMap, c)
		}
		return newValue
	})
	metrics.VideoWatchers.Inc()
}

func (h *VideoHub) removeClient(id string, c *ConnectedClient) {
	h.users.Upsert(id, ConnectedClients{}, func(exist bool, valueInMap, newValue ConnectedClients) ConnectedClients {
		if !exist {
			return newValue
		}
		for _, oc := range valueInMap {
			if oc == c {
				continue
			}
			newValue = append(newValue, oc)
		}
		return newValue
	})
	h.users.RemoveCb(id, func(_ string, v ConnectedClients, exists bool) bool {
		return exists && len(v) == 0
	})
	metrics.VideoWatchers.Dec()
}

// Notify makes every socket of the user reload its list right away
func (h *VideoHub) Notify(userID uint64) {
	clients, ok := h.users.Get(socketID(userID))
	if !ok {
		return
	}
	for _, c := range clients {
		select {
		case c.refresh <- struct{}{}:
		default: // a refresh is already pending
		}
	}
}

// Connected reports how many sockets the user has open
func (h *VideoHub) Connected(userID uint64) int {
	clients, _ := h.users.Get(socketID(userID))
	return len(clients)
}

func (h *VideoHub) WebSocket(c *gin.Context, _ *auth.Session, user *backend.User) {
	log := logger.Get().With().Uint64("user_id", user.ID).Logger()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	id := socketID(user.ID)
	client := &ConnectedClient{refresh: make(chan struct{}, 1)}
	h.addClient(id, client)
	defer h.removeClient(id, client)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	pongs := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.watch(ctx, conn, user.ID, client.refresh, pongs)
	}()

	// Main read cycle, all writes happen in watch
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("websocket closed")
			break
		}
		if string(message) == "ping" {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
	cancel()
	<-done
}

func (h *VideoHub) watch(ctx context.Context, conn *websocket.Conn, userID uint64, refresh, pongs <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []string
	first := true
	push := func() bool {
		videos, err := h.lister.Videos(ctx, userID)
		msg := WSMessage{Type: WSMessageVideos, Videos: videos}
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			msg = WSMessage{Type: WSMessageError, Error: "Could not load videos"}
		} else if !first && slices.Equal(videos, last) {
			return true
		}
		if err == nil {
			last, first = videos, false
		}
		data, _ := json.Marshal(msg)
		return write(conn, websocket.TextMessage, data)
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-pongs:
			if !write(conn, websocket.TextMessage, []byte("pong")) {
				return
			}
		case <-refresh:
			if !push() {
				return
			}
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}

func write(conn *websocket.Conn, messageType int, data []byte) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(messageType, data); err != nil {
		log := logger.Get()
		log.Debug().Err(err).Msg("websocket write")
		return false
	}
	return true
}
