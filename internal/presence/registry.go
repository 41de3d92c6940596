// Package presence tracks recently seen callers.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"relayd/pkg/types"
)

// DefaultExpiry is how long a caller stays listed after its last request.
const DefaultExpiry = 180 * time.Second

// Metadata describes one observed request.
type Metadata struct {
	Transport  string
	Identifier string
	Name       string
	Model      string
	Platform   string
	SSID       string
	Address    string
}

type record struct {
	types.ConnectedClient
	seen time.Time
}

// Registry holds connected-client records keyed by transport and identity.
type Registry struct {
	mu      sync.Mutex
	expiry  time.Duration
	clients map[string]*record
	now     func() time.Time
}

// New returns a Registry; expiry <= 0 selects DefaultExpiry.
func New(expiry time.Duration) *Registry {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Registry{expiry: expiry, clients: make(map[string]*record), now: time.Now}
}

// Record notes a request from md. Requests without a transport are ignored.
func (r *Registry) Record(md Metadata) {
	if md.Transport == "" {
		return
	}
	key := md.Transport + "|" + identity(md)
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.clients[key]
	if !ok {
		rec = &record{ConnectedClient: types.ConnectedClient{Transport: md.Transport}}
		r.clients[key] = rec
	}
	merge(&rec.ConnectedClient, md)
	rec.seen = now
	rec.LastSeen = now.Unix()
}

func identity(md Metadata) string {
	switch {
	case md.Identifier != "":
		return md.Identifier
	case md.Address != "":
		return md.Address
	default:
		return ulid.Make().String()
	}
}

func merge(c *types.ConnectedClient, md Metadata) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Identifier, md.Identifier)
	set(&c.Name, md.Name)
	set(&c.Model, md.Model)
	set(&c.Platform, md.Platform)
	set(&c.SSID, md.SSID)
	set(&c.Address, md.Address)
}

// Snapshot drops expired records and returns the rest, most recent first.
func (r *Registry) Snapshot() []types.ConnectedClient {
	now := r.now()
	r.mu.Lock()
	recs := make([]*record, 0, len(r.clients))
	for key, rec := range r.clients {
		if now.Sub(rec.seen) > r.expiry {
			delete(r.clients, key)
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seen.After(recs[j].seen) })
	out := make([]types.ConnectedClient, len(recs))
	for i, rec := range recs {
		out[i] = rec.ConnectedClient
	}
	r.mu.Unlock()
	return out
}

// Len returns the number of unexpired records.
func (r *Registry) Len() int { return len(r.Snapshot()) }
