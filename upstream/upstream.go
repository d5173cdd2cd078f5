// Package upstream maps query names to the configured external resolvers
// and speaks the query side of the wire protocol to them.
package upstream

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/dnsgate/dnsgate/nametree"
)

var (
	// ErrMissingDefault means no configured upstream has an empty target set.
	ErrMissingDefault = errors.New("upstream: missing default upstream")
	// ErrMultipleDefaults means more than one upstream has an empty target set.
	ErrMultipleDefaults = errors.New("upstream: multiple default upstreams")
)

// Server is one configured upstream resolver.
type Server struct {
	Name    string
	Addr    netip.AddrPort
	Targets []string
}

// Table routes query names to upstreams: the first registered server whose
// target suffix matches wins, everything else goes to the default. Routing
// is precomputed into a suffix tree at construction and read-only after.
type Table struct {
	servers []Server
	targets *nametree.Tree
	def     int
}

// NewTable builds the routing table. Exactly one server must carry an
// empty target list; it becomes the default.
func NewTable(servers []Server) (*Table, error) {
	t := &Table{
		servers: servers,
		targets: nametree.New(),
		def:     -1,
	}

	for i, s := range servers {
		if len(s.Targets) == 0 {
			if t.def >= 0 {
				return nil, ErrMultipleDefaults
			}
			t.def = i
			continue
		}
		for _, target := range s.Targets {
			if err := t.targets.AddTag(target, i); err != nil && !errors.Is(err, nametree.ErrDuplicated) {
				return nil, fmt.Errorf("upstream %s target %q: %w", s.Name, target, err)
			}
		}
	}

	if t.def < 0 {
		return nil, ErrMissingDefault
	}
	return t, nil
}

// Resolve returns the upstream responsible for name.
func (t *Table) Resolve(name string) Server {
	if i, ok := t.targets.Lookup(name); ok {
		return t.servers[i]
	}
	return t.servers[t.def]
}

// Default returns the default upstream.
func (t *Table) Default() Server {
	return t.servers[t.def]
}

// Servers returns the registered upstreams in registration order.
func (t *Table) Servers() []Server {
	return t.servers
}
