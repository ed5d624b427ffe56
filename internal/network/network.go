// Package network models the directed drainage graph between basins.
package network

import (
	"fmt"
	"slices"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// Network holds downstream and upstream adjacency for every basin. Components
// containing dangling references or cycles are quarantined at build time so
// traversals never see them.
type Network struct {
	basins     map[int64]model.Basin
	mids       []int64
	downstream map[int64]int64
	upstream   map[int64][]int64

	component   map[int64]int64 // mid -> component root
	quarantined map[int64]bool  // component root -> malformed
	malformed   []*MalformedNetworkError
}

// New builds the network from the drainage table. It only fails on input
// that cannot describe a network at all; malformed components are recorded
// and exposed through Malformed.
func New(basins []model.Basin) (*Network, error) {
	n := &Network{
		basins:      make(map[int64]model.Basin, len(basins)),
		mids:        make([]int64, 0, len(basins)),
		downstream:  make(map[int64]int64, len(basins)),
		upstream:    make(map[int64][]int64),
		component:   make(map[int64]int64, len(basins)),
		quarantined: make(map[int64]bool),
	}

	for _, b := range basins {
		if _, dup := n.basins[b.Mid]; dup {
			return nil, fmt.Errorf("duplicate basin id %d in drainage table", b.Mid)
		}
		n.basins[b.Mid] = b
		n.mids = append(n.mids, b.Mid)
	}
	slices.Sort(n.mids)

	uf := newUnionFind(n.mids)
	var dangling []*MalformedNetworkError
	for _, mid := range n.mids {
		b := n.basins[mid]
		if b.DownstreamMid == nil {
			continue
		}
		ds := *b.DownstreamMid
		if _, ok := n.basins[ds]; !ok {
			dangling = append(dangling, &MalformedNetworkError{Kind: KindDangling, Mid: mid, Downstream: ds})
			continue
		}
		n.downstream[mid] = ds
		n.upstream[ds] = append(n.upstream[ds], mid)
		uf.union(mid, ds)
	}
	for ds := range n.upstream {
		slices.Sort(n.upstream[ds])
	}

	for _, mid := range n.mids {
		n.component[mid] = uf.find(mid)
	}

	problems := append(dangling, n.findCycles()...)
	if len(problems) == 0 {
		return n, nil
	}

	members := make(map[int64][]int64)
	for _, mid := range n.mids {
		root := n.component[mid]
		members[root] = append(members[root], mid)
	}
	for _, p := range problems {
		root := n.component[p.Mid]
		n.quarantined[root] = true
		p.Component = members[root]
	}
	n.malformed = problems
	return n, nil
}

// findCycles follows downstream links from every basin with an explicit
// path stack. Each basin has at most one downstream link, so a cycle is found
// when a walk re-enters a basin that is still on the current path.
func (n *Network) findCycles() []*MalformedNetworkError {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[int64]int, len(n.mids))
	var found []*MalformedNetworkError

	for _, start := range n.mids {
		if state[start] != unvisited {
			continue
		}
		var path []int64
		cur := start
		for {
			st := state[cur]
			if st == done {
				break
			}
			if st == onPath {
				found = append(found, &MalformedNetworkError{Kind: KindCycle, Mid: cur, Downstream: n.downstream[cur]})
				break
			}
			state[cur] = onPath
			path = append(path, cur)
			next, ok := n.downstream[cur]
			if !ok {
				break
			}
			cur = next
		}
		for _, mid := range path {
			state[mid] = done
		}
	}
	return found
}

// Basin returns the attributes of mid.
func (n *Network) Basin(mid int64) (model.Basin, bool) {
	b, ok := n.basins[mid]
	return b, ok
}

// Downstream returns the basin immediately downstream of mid. The second
// result is false at outlets and for unknown ids.
func (n *Network) Downstream(mid int64) (int64, bool) {
	ds, ok := n.downstream[mid]
	return ds, ok
}

// Upstream returns the basins draining directly into mid, sorted by id.
func (n *Network) Upstream(mid int64) []int64 {
	return n.upstream[mid]
}

// Mids returns every basin id in ascending order.
func (n *Network) Mids() []int64 {
	return n.mids
}

// Len returns the number of basins.
func (n *Network) Len() int {
	return len(n.mids)
}

// Quarantined reports whether mid belongs to a malformed component.
func (n *Network) Quarantined(mid int64) bool {
	root, ok := n.component[mid]
	return ok && n.quarantined[root]
}

// Malformed returns every problem found while building the network.
func (n *Network) Malformed() []*MalformedNetworkError {
	return n.malformed
}

// MalformedComponents returns the number of quarantined components.
func (n *Network) MalformedComponents() int {
	return len(n.quarantined)
}

type unionFind struct {
	parent map[int64]int64
}

func newUnionFind(ids []int64) *unionFind {
	uf := &unionFind{parent: make(map[int64]int64, len(ids))}
	for _, id := range ids {
		uf.parent[id] = id
	}
	return uf
}

func (uf *unionFind) find(id int64) int64 {
	root := id
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[id] != root {
		next := uf.parent[id]
		uf.parent[id] = root
		id = next
	}
	return root
}

// union keeps the smaller id as root so component ids are stable.
func (uf *unionFind) union(a, b int64) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
}
