package stream

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JGreyScales/Driver-Analytics-Mobile-App/internal/logging"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "notifications:"
	outboxSize    = 256
)

var publishTimeout = 2 * time.Second

type publishFunc func(ctx context.Context, channel string, payload []byte) error

type outbound struct {
	userID  int64
	payload []byte
}

// Hub fans messages out to each user's connected clients. With redis, every
// message goes through pub/sub so clients connected to any instance get it.
// Publishing happens on a background goroutine; Broadcast never waits on redis.
type Hub struct {
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *zap.Logger

	publish publishFunc
	outbox  chan outbound
	stopped atomic.Bool
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

type Client struct {
	UserID int64
	Send   chan []byte
}

func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	return newHub(redisClient, nil, logger)
}

func newHub(redisClient *redis.Client, publish publishFunc, logger *zap.Logger) *Hub {
	h := &Hub{
		clients: map[int64]map[*Client]struct{}{},
		logger:  logging.OrNop(logger),
	}
	if redisClient == nil {
		return h
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := redisClient.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Warn("redis subscribe failed, delivering locally", zap.Error(err))
		_ = pubsub.Close()
		cancel()
		return h
	}

	if publish == nil {
		publish = func(ctx context.Context, channel string, payload []byte) error {
			return redisClient.Publish(ctx, channel, payload).Err()
		}
	}
	h.publish = publish
	h.outbox = make(chan outbound, outboxSize)
	h.cancel = cancel
	h.workers.Add(2)
	go h.subscribeRedis(ctx, pubsub)
	go h.publishLoop(ctx)
	return h
}

func (h *Hub) Register(userID int64) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.UserID]; ok {
		if _, registered := userClients[client]; !registered {
			return
		}
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.clients, client.UserID)
		}
		close(client.Send)
	}
}

// Broadcast never blocks: slow clients miss messages, and when the redis
// queue is full or the hub is closed the message is delivered locally.
func (h *Hub) Broadcast(userID int64, payload []byte) {
	if h.outbox != nil && !h.stopped.Load() {
		select {
		case h.outbox <- outbound{userID: userID, payload: payload}:
			return
		default:
			h.logger.Warn("publish queue full, delivering locally", zap.Int64("user_id", userID))
		}
	}
	h.deliver(userID, payload)
}

// Close stops the redis relay. Registered clients are left to their handlers.
func (h *Hub) Close() {
	if h.cancel == nil {
		return
	}
	h.stopped.Store(true)
	h.cancel()
	h.workers.Wait()
}

func (h *Hub) deliver(userID int64, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) publishLoop(ctx context.Context) {
	defer h.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.outbox:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := h.publish(pctx, redisChannel(msg.userID), msg.payload)
			cancel()
			if err != nil {
				h.logger.Warn("redis publish failed, delivering locally", zap.Int64("user_id", msg.userID), zap.Error(err))
				h.deliver(msg.userID, msg.payload)
			}
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer h.workers.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, ok := userIDFromChannel(msg.Channel)
			if !ok {
				continue
			}
			h.deliver(userID, []byte(msg.Payload))
		}
	}
}

func redisChannel(userID int64) string {
	return channelPrefix + strconv.FormatInt(userID, 10)
}

func userIDFromChannel(ch string) (int64, bool) {
	raw, found := strings.CutPrefix(ch, channelPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
