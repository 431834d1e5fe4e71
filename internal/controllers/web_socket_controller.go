package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"runaway_tracker/internal/hub"
	"runaway_tracker/internal/middleware"
	"runaway_tracker/internal/models"
	"runaway_tracker/internal/position"
)

const writeWait = 10 * time.Second

// upgrader configures the WebSocket connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tokens are checked by RequireAuth before the upgrade
	},
}

// deviceMessage is one frame from the phone: {"type":"sample","data":{...}}
// or {"type":"permission","data":{"authorized":true}}.
type deviceMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type permissionData struct {
	Authorized bool `json:"authorized"`
}

// LocationData is a raw fix as sent by the phone.
type LocationData struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // meters
	Speed     float64   `json:"speed"`    // m/s, negative when unknown
	Altitude  float64   `json:"altitude"` // meters
	Timestamp time.Time `json:"timestamp"`
}

// UnmarshalJSON accepts timestamps with or without a zone suffix; zoneless
// values are read as UTC.
func (ld *LocationData) UnmarshalJSON(data []byte) error {
	type alias LocationData
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(ld)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts := aux.Timestamp
	if ts == "" {
		return errors.New("missing timestamp")
	}
	if !hasZone(ts) {
		ts += "Z"
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"raw_timestamp": aux.Timestamp,
			"parse_error":   err,
		}).Debug("Failed to parse sample timestamp.")
		return fmt.Errorf("invalid timestamp %q: %w", aux.Timestamp, err)
	}
	ld.Timestamp = t
	return nil
}

func hasZone(ts string) bool {
	if strings.HasSuffix(ts, "Z") {
		return true
	}
	if len(ts) < 6 {
		return false
	}
	return strings.ContainsAny(ts[len(ts)-6:], "+-")
}

func (ld LocationData) Sample() models.Sample {
	return models.Sample{
		Latitude:  ld.Latitude,
		Longitude: ld.Longitude,
		Altitude:  ld.Altitude,
		Speed:     ld.Speed,
		Accuracy:  ld.Accuracy,
		Timestamp: ld.Timestamp,
	}
}

type WebSocketController struct {
	source *position.DeviceSource
	hub    *hub.TelemetryHub
}

func NewWebSocketController(source *position.DeviceSource, h *hub.TelemetryHub) *WebSocketController {
	return &WebSocketController{source: source, hub: h}
}

// DeviceSocket ingests samples and permission changes from the runner's phone.
func (wc *WebSocketController) DeviceSocket(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Device WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"conn_ptr": fmt.Sprintf("%p", conn),
	})
	log.Info("Device WebSocket connection established.")

	for {
		messageType, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Info("Device WebSocket closed.")
			} else {
				log.WithError(err).Warn("Error reading device WebSocket message")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := wc.handleDeviceMessage(p); err != nil {
			log.WithError(err).Debug("Rejected device message")
			reply(conn, gin.H{"type": "error", "error": err.Error()})
		}
	}
}

func (wc *WebSocketController) handleDeviceMessage(p []byte) error {
	var msg deviceMessage
	if err := json.Unmarshal(p, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	switch msg.Type {
	case "sample":
		var loc LocationData
		if err := json.Unmarshal(msg.Data, &loc); err != nil {
			return err
		}
		wc.source.Push(loc.Sample())
	case "permission":
		var perm permissionData
		if err := json.Unmarshal(msg.Data, &perm); err != nil {
			return err
		}
		wc.source.SetAuthorized(perm.Authorized)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// LiveSocket streams telemetry frames to a viewer until it disconnects.
func (wc *WebSocketController) LiveSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Live WebSocket upgrade failed")
		return
	}

	client := wc.hub.Register()
	log := logrus.WithField("conn_ptr", fmt.Sprintf("%p", conn))
	log.Info("Live viewer connected.")

	go func() {
		for frame := range client.Send {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WithError(err).Debug("Live viewer write failed")
				conn.Close()
				return
			}
		}
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	}()

	// viewers only listen; reading detects the disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	wc.hub.Unregister(client)
	conn.Close()
	log.Info("Live viewer disconnected.")
}

func reply(conn *websocket.Conn, v interface{}) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		logrus.WithError(err).Debug("Device reply failed")
	}
}
