package natsadapter

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// ReportStream captures every report lifecycle event.
	ReportStream = "WASTE_REPORTS"

	// ReportSubjects matches all report event subjects.
	ReportSubjects = "waste.reports.>"
)

// ReportSubject maps an event type such as "report.created" to "waste.reports.created".
func ReportSubject(eventType string) string {
	return "waste.reports." + strings.TrimPrefix(eventType, "report.")
}

// LocateSubject is where position requests for a collector are sent.
func LocateSubject(collectorID string) string {
	return "waste.collectors." + token(collectorID) + ".locate"
}

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// token encodes an identifier as a single subject token. The encoding is
// reversible, so distinct ids never share a subject.
func token(id string) string {
	if id == "" {
		return "_"
	}
	return strings.ToLower(tokenEncoding.EncodeToString([]byte(id)))
}

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
