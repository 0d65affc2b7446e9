// Package mesh decides which direct peer connections a participant must
// hold and which side of each pair initiates negotiation, then drives the
// offer/answer/candidate exchange for every edge.
package mesh

import "sort"

// Edge is one required connection from the local participant to a peer.
type Edge struct {
	Peer      string
	Initiator bool
}

// Initiates reports whether self sends the first offer toward peer. The
// tie-break is plain bytewise comparison of connection ids: a fixed total
// order both ends compute independently, so exactly one side of any pair
// ever initiates.
func Initiates(self, peer string) bool {
	return self < peer
}

// Plan returns the local edge set for a roster. The roster may or may not
// include self; either way the result holds one edge per other participant,
// so a full roster of N yields N-1 local edges and N·(N-1)/2 system-wide.
func Plan(self string, roster []string) []Edge {
	seen := make(map[string]bool, len(roster))
	edges := make([]Edge, 0, len(roster))
	for _, peer := range roster {
		if peer == self || seen[peer] {
			continue
		}
		seen[peer] = true
		edges = append(edges, Edge{Peer: peer, Initiator: Initiates(self, peer)})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Peer < edges[j].Peer })
	return edges
}

// TotalEdges is the system-wide connection count for a roster of size n.
func TotalEdges(n int) int {
	return n * (n - 1) / 2
}
