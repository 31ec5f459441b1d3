package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/environmenttech/wastewatch/internal/adapters/nats"
	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/pkg/auth"
	"github.com/environmenttech/wastewatch/internal/pkg/metrics"
)

// wsMessage is sent by clients. Subscriptions use action/channel/event;
// collector devices answer locate requests with action "position".
type wsMessage struct {
	Action     string    `json:"action"`            // subscribe | unsubscribe | ping | position
	Channel    string    `json:"channel,omitempty"` // "reports" (default)
	Event      string    `json:"event,omitempty"`   // created | resolved | labelled, "" = all
	RequestID  string    `json:"request_id,omitempty"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	AccuracyM  float64   `json:"accuracy_m,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// locateFrame asks the device for a position fix.
type locateFrame struct {
	Type         string `json:"type"`
	RequestID    string `json:"request_id"`
	HighAccuracy bool   `json:"high_accuracy"`
	TimeoutMs    int64  `json:"timeout_ms"`
	MaxAgeMs     int64  `json:"max_age_ms"`
}

// subjectFor maps a client subscription to a NATS subject.
func subjectFor(channel, event string) (string, error) {
	if channel == "" {
		channel = "reports"
	}
	if channel != "reports" {
		return "", fmt.Errorf("unknown channel: %s", channel)
	}
	switch event {
	case "":
		return natsadapter.ReportSubjects, nil
	case "created", "resolved", "labelled":
		return natsadapter.ReportSubject(event), nil
	default:
		return "", fmt.Errorf("unknown event: %s", event)
	}
}

// positionFix converts a device answer into the reply sent to the locator.
func positionFix(m wsMessage) (domain.PositionFix, error) {
	if m.RequestID == "" {
		return domain.PositionFix{}, fmt.Errorf("request_id is required")
	}
	if m.Error != "" {
		return domain.PositionFix{Error: string(domain.ParseGeolocationReason(m.Error))}, nil
	}
	if m.Lat == nil || m.Lon == nil {
		return domain.PositionFix{}, fmt.Errorf("lat and lon are required")
	}
	fix := domain.PositionFix{
		Coordinate:     domain.Coordinate{Lat: *m.Lat, Lon: *m.Lon},
		AccuracyMeters: m.AccuracyM,
		CapturedAt:     m.CapturedAt,
	}
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = time.Now().UTC()
	}
	return fix, nil
}

// WebSocketHandler relays report events to connected clients. Connections of
// collectors also receive locate requests for their own id and answer them
// with position messages.
// Clients send JSON: {"action":"subscribe","channel":"reports","event":"created"}
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		claims, _ := c.Locals(claimsKey).(*auth.Claims)
		if claims == nil || nc == nil {
			return
		}

		logger := slog.Default().With("remote", c.RemoteAddr().String(), "user_id", claims.UserID)
		logger.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		relay := func(msg *nats.Msg) { _ = writeJSON(json.RawMessage(msg.Data)) }

		subs := newReportSubscriptions(func(subject string) (unsubscriber, error) {
			return nc.Subscribe(subject, relay)
		})
		defer subs.Close()

		if _, err := subs.Add(natsadapter.ReportSubjects); err != nil {
			logger.Error("ws default subscribe failed", "error", err)
			return
		}

		// request_id -> NATS reply inbox of the waiting locator
		var pendingMu sync.Mutex
		pending := make(map[string]string)

		if claims.HasRole(auth.RoleCollector, auth.RoleAdmin) {
			locateSub, err := nc.Subscribe(natsadapter.LocateSubject(claims.UserID), func(msg *nats.Msg) {
				var req natsadapter.LocateRequest
				if err := json.Unmarshal(msg.Data, &req); err != nil || req.RequestID == "" || msg.Reply == "" {
					return
				}
				pendingMu.Lock()
				pending[req.RequestID] = msg.Reply
				pendingMu.Unlock()
				time.AfterFunc(time.Duration(req.TimeoutMs)*time.Millisecond+time.Second, func() {
					pendingMu.Lock()
					delete(pending, req.RequestID)
					pendingMu.Unlock()
				})
				_ = writeJSON(locateFrame{
					Type:         "locate",
					RequestID:    req.RequestID,
					HighAccuracy: req.HighAccuracy,
					TimeoutMs:    req.TimeoutMs,
					MaxAgeMs:     req.MaxAgeMs,
				})
			})
			if err != nil {
				logger.Error("ws locate subscribe failed", "error", err)
				return
			}
			defer func() { _ = locateSub.Unsubscribe() }()
		}

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "ping":
				_ = writeJSON(map[string]string{"type": "pong"})

			case "position":
				fix, err := positionFix(m)
				if err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
					continue
				}
				pendingMu.Lock()
				reply, ok := pending[m.RequestID]
				delete(pending, m.RequestID)
				pendingMu.Unlock()
				if !ok {
					_ = writeJSON(map[string]string{"error": "unknown or expired request_id", "request_id": m.RequestID})
					continue
				}
				data, _ := json.Marshal(fix)
				if err := nc.Publish(reply, data); err != nil {
					logger.Warn("ws position reply failed", "error", err)
				}

			case "subscribe", "unsubscribe":
				subject, err := subjectFor(m.Channel, m.Event)
				if err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
					continue
				}
				if m.Action == "subscribe" {
					dropped, err := subs.Add(subject)
					switch {
					case errors.Is(err, errAlreadySubscribed):
						_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					case err != nil:
						_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					default:
						_ = writeJSON(map[string]any{"status": "subscribed", "subject": subject, "replaced": dropped})
					}
					continue
				}
				if err := subs.Remove(subject); errors.Is(err, errNotSubscribed) {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				} else {
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		logger.Info("ws client disconnected")
	}
}
