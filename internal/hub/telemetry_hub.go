package hub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"runaway_tracker/internal/metrics"
	"runaway_tracker/internal/models"
)

const (
	TypeSessionStarted = "session_started"
	TypeTelemetry      = "telemetry"
	TypeSummary        = "summary"
)

const (
	channelPrefix = "recording:"
	channelSuffix = ":telemetry"

	// a session has exactly one summary, so it may wait this long for room
	summaryWait = 2 * time.Second
)

// Envelope is the JSON frame sent to live viewers.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is one connected viewer. The websocket writer drains Send.
type Client struct {
	Send chan []byte
}

type outbound struct {
	sessionID string
	payload   []byte
}

// TelemetryHub is the live display sink. Frames go through a buffered channel
// so the recorder's broadcaster never waits on a viewer. With redis configured,
// frames are published to recording:<session>:telemetry and every instance
// delivers what it receives from the subscription; otherwise they are
// delivered locally.
type TelemetryHub struct {
	clients   map[*Client]struct{}
	broadcast chan outbound
	redis     *redis.Client
	pubsub    *redis.PubSub
	mu        sync.RWMutex
	lastStart []byte
	log       *logrus.Entry
}

// NewTelemetryHub creates the hub and starts its delivery goroutine. A nil
// redis client keeps delivery in-process.
func NewTelemetryHub(redisClient *redis.Client) (*TelemetryHub, error) {
	h := &TelemetryHub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan outbound, 100),
		redis:     redisClient,
		log:       logrus.WithField("component", "telemetry_hub"),
	}

	if redisClient != nil {
		ctx := context.Background()
		h.pubsub = redisClient.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
		// wait for the subscription so nothing published after this is missed
		if _, err := h.pubsub.Receive(ctx); err != nil {
			h.pubsub.Close()
			return nil, err
		}
		go h.subscribeRedis()
	}
	go h.run()
	return h, nil
}

// Register adds a viewer. A viewer joining mid-session is told which session is live.
func (h *TelemetryHub) Register() *Client {
	client := &Client{Send: make(chan []byte, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	if h.lastStart != nil {
		client.Send <- h.lastStart
	}
	metrics.LiveViewers.Set(float64(len(h.clients)))
	return client
}

// Unregister removes a viewer and closes its Send channel.
func (h *TelemetryHub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	metrics.LiveViewers.Set(float64(len(h.clients)))
}

func (h *TelemetryHub) SessionStarted(info models.SessionInfo) {
	payload := h.encode(TypeSessionStarted, info)
	if payload == nil {
		return
	}
	h.mu.Lock()
	h.lastStart = payload
	h.mu.Unlock()
	h.enqueue(info.SessionID, payload)
}

func (h *TelemetryHub) Publish(snapshot models.TelemetrySnapshot) {
	if payload := h.encode(TypeTelemetry, snapshot); payload != nil {
		h.enqueue(snapshot.SessionID, payload)
	}
}

func (h *TelemetryHub) SessionEnded(summary models.SummarySnapshot) {
	h.mu.Lock()
	h.lastStart = nil
	h.mu.Unlock()
	payload := h.encode(TypeSummary, summary)
	if payload == nil {
		return
	}
	select {
	case h.broadcast <- outbound{sessionID: summary.SessionID, payload: payload}:
	case <-time.After(summaryWait):
		metrics.DroppedMessages.WithLabelValues("telemetry_hub").Inc()
		h.log.WithField("session_id", summary.SessionID).Error("Telemetry broadcast channel stuck, summary frame lost.")
	}
}

// Close stops the redis subscription.
func (h *TelemetryHub) Close() error {
	if h.pubsub != nil {
		return h.pubsub.Close()
	}
	return nil
}

func (h *TelemetryHub) encode(kind string, data interface{}) []byte {
	payload, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		h.log.WithError(err).WithField("type", kind).Error("Failed to encode telemetry frame.")
		return nil
	}
	return payload
}

func (h *TelemetryHub) enqueue(sessionID string, payload []byte) {
	select {
	case h.broadcast <- outbound{sessionID: sessionID, payload: payload}:
	default:
		metrics.DroppedMessages.WithLabelValues("telemetry_hub").Inc()
		h.log.Warn("Telemetry broadcast channel full, dropping frame.")
	}
}

func (h *TelemetryHub) run() {
	for msg := range h.broadcast {
		if h.redis == nil {
			h.deliver(msg.payload)
			continue
		}
		err := h.redis.Publish(context.Background(), redisChannel(msg.sessionID), msg.payload).Err()
		if err != nil {
			h.log.WithError(err).WithField("session_id", msg.sessionID).Warn("Redis publish failed, delivering locally.")
			h.deliver(msg.payload)
		}
	}
}

func (h *TelemetryHub) subscribeRedis() {
	for msg := range h.pubsub.Channel() {
		if sessionIDFromChannel(msg.Channel) == "" {
			continue
		}
		h.deliver([]byte(msg.Payload))
	}
}

func (h *TelemetryHub) deliver(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Send <- payload:
		default:
			metrics.DroppedMessages.WithLabelValues("live_viewer").Inc()
		}
	}
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
