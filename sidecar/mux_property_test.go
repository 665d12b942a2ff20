package sidecar

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/bazelment/agent-sidecar/protocol"
)

var propertyRequests = []string{"r0", "r1", "r2"}

// stepEvent maps a generated step to an event: the low digit picks the
// request, the high digit picks message or END.
func stepEvent(i, step int) *protocol.ServerEvent {
	requestID := propertyRequests[step%len(propertyRequests)]
	if step/len(propertyRequests) == 2 {
		return endEvent("t-"+requestID, requestID, 1)
	}
	return assistantEvent("t-"+requestID, requestID, fmt.Sprint(i), false)
}

// expectedForRequest is every event of requestID up to and including its
// first END.
func expectedForRequest(events []*protocol.ServerEvent, requestID string) []*protocol.ServerEvent {
	var out []*protocol.ServerEvent
	for _, ev := range events {
		if ev.RequestID != requestID {
			continue
		}
		out = append(out, ev)
		if ev.IsTurnEnd() {
			break
		}
	}
	return out
}

func sameEvents(got, want []*protocol.ServerEvent) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestEventMuxDeliveryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("global sees all events in order, request subscriptions see their own until END", prop.ForAll(
		func(steps []int) bool {
			m := NewEventMux()
			global := m.SubscribeAll(1)
			perRequest := make(map[string]*Subscription)
			for _, id := range propertyRequests {
				perRequest[id] = m.SubscribeRequest(id, 1)
			}

			events := make([]*protocol.ServerEvent, len(steps))
			for i, step := range steps {
				events[i] = stepEvent(i, step)
				m.Enqueue(events[i])
			}
			m.Close()

			if !sameEvents(drain(t, global.Events()), events) {
				return false
			}
			for id, sub := range perRequest {
				if !sameEvents(drain(t, sub.Events()), expectedForRequest(events, id)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 8)),
	))

	properties.Property("close is idempotent and leaves the registry empty", prop.ForAll(
		func(closes int) bool {
			m := NewEventMux()
			m.SubscribeAll(1)
			m.SubscribeRequest("r0", 1)
			for range closes {
				m.Close()
			}
			<-m.Done()
			st := m.Stats()
			return st.Closed && st.Global == 0 && st.Requests == 0
		},
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
