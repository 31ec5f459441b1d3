package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// maxClockSkew is how far a device clock may lag the server before a fix
// taken after the request looks stale.
const maxClockSkew = 5 * time.Second

// LocateRequest asks a collector device for a position fix.
type LocateRequest struct {
	RequestID    string    `json:"request_id"`
	HighAccuracy bool      `json:"high_accuracy"`
	TimeoutMs    int64     `json:"timeout_ms"`
	MaxAgeMs     int64     `json:"max_age_ms"`
	RequestedAt  time.Time `json:"requested_at"`
}

// PositionLocator implements ports.Geolocator by asking the collector's connected
// devices for a fix over NATS request/reply.
type PositionLocator struct {
	conn        *nats.Conn
	collectorID string
	now         func() time.Time
}

// NewPositionLocator creates a locator for one collector.
func NewPositionLocator(conn *nats.Conn, collectorID string) *PositionLocator {
	return &PositionLocator{conn: conn, collectorID: collectorID, now: time.Now}
}

// CurrentPosition requests a fix and waits until ctx is done.
func (l *PositionLocator) CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
	if l.conn == nil || !l.conn.IsConnected() {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, errors.New("position channel offline"))
	}

	requested := l.now()
	req := LocateRequest{
		RequestID:    uuid.NewString(),
		HighAccuracy: opts.HighAccuracy,
		TimeoutMs:    opts.Timeout.Milliseconds(),
		MaxAgeMs:     opts.MaxAge.Milliseconds(),
		RequestedAt:  requested.UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return domain.Coordinate{}, err
	}

	msg, err := l.conn.RequestWithContext(ctx, LocateSubject(l.collectorID), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, errors.New("no connected device"))
		}
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoTimeout, err)
	}
	return InterpretFix(msg.Data, requested, opts.MaxAge)
}

// InterpretFix decodes a device reply. Fixes captured before requested-maxAge,
// less maxClockSkew, are stale.
func InterpretFix(data []byte, requested time.Time, maxAge time.Duration) (domain.Coordinate, error) {
	var fix domain.PositionFix
	if err := json.Unmarshal(data, &fix); err != nil {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, fmt.Errorf("decode fix: %w", err))
	}
	if fix.Error != "" {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.ParseGeolocationReason(fix.Error), nil)
	}
	if fix.CapturedAt.IsZero() || fix.CapturedAt.Before(requested.Add(-maxAge-maxClockSkew)) {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoTimeout,
			fmt.Errorf("stale fix captured at %s", fix.CapturedAt.Format(time.RFC3339Nano)))
	}
	if err := fix.Coordinate.Validate(); err != nil {
		return domain.Coordinate{}, domain.NewGeolocationError(domain.GeoUnsupported, err)
	}
	return fix.Coordinate, nil
}
