package animgraph

import (
	"fmt"
	"sort"
	"strings"
)

// RemovedConnection records a connection dropped to break a cycle.
type RemovedConnection struct {
	ID         uint64
	Source     string
	SourcePort int
	Target     string
	TargetPort int
	// Cycle lists the node names around the loop, starting and ending at
	// Target.
	Cycle []string
}

func (r RemovedConnection) String() string {
	return fmt.Sprintf("removed %s[%d] -> %s[%d] closing cycle %s",
		r.Source, r.SourcePort, r.Target, r.TargetPort, strings.Join(r.Cycle, " -> "))
}

const (
	white = iota
	gray
	black
)

// removeCycles runs a depth-first search over the source-to-consumer edges
// of nodes and disconnects every back edge. Nodes are visited in slice order
// and edges in (target, port) order, so the result is deterministic.
func removeCycles(nodes []Node) []RemovedConnection {
	pos := make(map[Node]int, len(nodes))
	for i, n := range nodes {
		pos[n] = i
	}

	out := make([][]*Connection, len(nodes))
	for _, n := range nodes {
		for _, c := range n.Base().Connections() {
			if s, ok := pos[c.Source]; ok {
				out[s] = append(out[s], c)
			}
		}
	}
	for _, edges := range out {
		sort.SliceStable(edges, func(a, b int) bool {
			ta, tb := pos[edges[a].Target], pos[edges[b].Target]
			if ta != tb {
				return ta < tb
			}
			return edges[a].TargetPort < edges[b].TargetPort
		})
	}

	color := make([]int, len(nodes))
	var stack []int
	var removed []RemovedConnection

	var visit func(u int)
	visit = func(u int) {
		color[u] = gray
		stack = append(stack, u)
		for _, c := range out[u] {
			v := pos[c.Target]
			switch color[v] {
			case gray:
				removed = append(removed, RemovedConnection{
					ID:         c.ID,
					Source:     c.Source.Base().Name(),
					SourcePort: c.SourcePort,
					Target:     c.Target.Base().Name(),
					TargetPort: c.TargetPort,
					Cycle:      cyclePath(nodes, stack, v),
				})
				c.Target.Base().Disconnect(c.TargetPort)
			case white:
				visit(v)
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
	}

	for i := range nodes {
		if color[i] == white {
			visit(i)
		}
	}
	return removed
}

func cyclePath(nodes []Node, stack []int, start int) []string {
	var path []string
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == start {
			for _, idx := range stack[i:] {
				path = append(path, nodes[idx].Base().Name())
			}
			break
		}
	}
	return append(path, nodes[start].Base().Name())
}
