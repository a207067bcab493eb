package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ipsstech/pairtalk/internal/models"
)

type shard struct {
	mu    sync.RWMutex
	conns map[int64]map[*Client]struct{}
}

// shardCount sizes the registry's lock table. Identities hash onto shards so
// fan-out for unrelated identities never contends on one mutex.
const shardCount = 16

// Registry tracks which live connections belong to which identity. An
// identity may hold any number of simultaneous connections (one per device);
// registering a second connection adds it, it never replaces the first.
// The registry is the only component that mutates the mapping.
type Registry struct {
	shards [shardCount]shard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[int64]map[*Client]struct{})
	}
	return r
}

func (r *Registry) shardFor(identity int64) *shard {
	return &r.shards[uint64(identity)%shardCount]
}

// Register binds the connection to the identity. Idempotent per connection.
func (r *Registry) Register(identity int64, c *Client) {
	c.identity.Store(identity)
	sh := r.shardFor(identity)
	sh.mu.Lock()
	set, ok := sh.conns[identity]
	if !ok {
		set = make(map[*Client]struct{})
		sh.conns[identity] = set
	}
	set[c] = struct{}{}
	sh.mu.Unlock()
}

// Unregister removes the connection's mapping. No-op if already absent.
func (r *Registry) Unregister(c *Client) {
	identity := c.identity.Load()
	if identity == 0 {
		return
	}
	sh := r.shardFor(identity)
	sh.mu.Lock()
	if set, ok := sh.conns[identity]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(sh.conns, identity)
		}
	}
	sh.mu.Unlock()
}

// ConnectionsFor returns a snapshot of the identity's live connections. An
// empty result is the normal "peer offline" case, not an error.
func (r *Registry) ConnectionsFor(identity int64) []*Client {
	sh := r.shardFor(identity)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	set := sh.conns[identity]
	if len(set) == 0 {
		return nil
	}
	snapshot := make([]*Client, 0, len(set))
	for c := range set {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// Send fans the event out to every live connection of the identity and
// reports whether at least one accepted it. Writes are non-blocking: a
// connection whose buffer is full is treated as dead and dropped, so one
// slow peer can never stall delivery to anyone else.
func (r *Registry) Send(identity int64, event string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal event payload")
		return false
	}
	frame, err := json.Marshal(models.Event{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal event frame")
		return false
	}

	delivered := false
	for _, c := range r.ConnectionsFor(identity) {
		if c.trySend(frame) {
			delivered = true
			continue
		}
		// Buffer full: the peer stopped draining. Treat as disconnect.
		log.Warn().Int64("identity", identity).Str("conn", c.ID.String()).Msg("dropping unresponsive connection")
		r.Unregister(c)
		c.close()
	}
	return delivered
}
