package http

import (
	"errors"
	"sort"

	natsadapter "github.com/environmenttech/wastewatch/internal/adapters/nats"
)

var (
	errAlreadySubscribed = errors.New("already subscribed")
	errNotSubscribed     = errors.New("not subscribed")
)

type unsubscriber interface {
	Unsubscribe() error
}

// reportSubscriptions tracks one client's report subjects. The wildcard and a
// specific event subject never coexist, so each event is relayed at most once.
type reportSubscriptions struct {
	subscribe func(subject string) (unsubscriber, error)
	subs      map[string]unsubscriber
}

func newReportSubscriptions(subscribe func(subject string) (unsubscriber, error)) *reportSubscriptions {
	return &reportSubscriptions{subscribe: subscribe, subs: make(map[string]unsubscriber)}
}

// Add subscribes to subject and returns the overlapping subjects it dropped.
// The new subscription is in place before the overlaps are removed.
func (r *reportSubscriptions) Add(subject string) ([]string, error) {
	if _, ok := r.subs[subject]; ok {
		return nil, errAlreadySubscribed
	}
	s, err := r.subscribe(subject)
	if err != nil {
		return nil, err
	}

	var dropped []string
	for existing, sub := range r.subs {
		if overlaps(subject, existing) {
			_ = sub.Unsubscribe()
			delete(r.subs, existing)
			dropped = append(dropped, existing)
		}
	}
	sort.Strings(dropped)
	r.subs[subject] = s
	return dropped, nil
}

// Remove drops the subscription for subject.
func (r *reportSubscriptions) Remove(subject string) error {
	s, ok := r.subs[subject]
	if !ok {
		return errNotSubscribed
	}
	delete(r.subs, subject)
	return s.Unsubscribe()
}

// Subjects lists the active subjects in order.
func (r *reportSubscriptions) Subjects() []string {
	out := make([]string, 0, len(r.subs))
	for s := range r.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close drops every subscription.
func (r *reportSubscriptions) Close() {
	for subject, s := range r.subs {
		_ = s.Unsubscribe()
		delete(r.subs, subject)
	}
}

// overlaps reports whether both subjects would deliver the same event.
func overlaps(a, b string) bool {
	return a == natsadapter.ReportSubjects || b == natsadapter.ReportSubjects
}
