package agentstream

import (
	"context"

	"github.com/bazelment/agent-sidecar/protocol"
)

// Bridge reads server events until the channel closes or ctx is done,
// translating each and passing the results to fn. With a non-empty scopeID
// only events of that request reach fn.
func Bridge(ctx context.Context, events <-chan *protocol.ServerEvent, scopeID string, fn func(Event)) error {
	if events == nil {
		return nil
	}
	t := NewTranslator()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			for _, sev := range t.Translate(ev) {
				if sev.StreamEventKind() == KindUnknown {
					continue
				}
				if scopeID != "" {
					if scoped, ok := sev.(Scoped); ok {
						if id := scoped.ScopeID(); id != "" && id != scopeID {
							continue
						}
					}
				}
				fn(sev)
			}
		}
	}
}
