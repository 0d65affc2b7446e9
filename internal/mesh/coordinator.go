package mesh

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/signal"
)

// EdgeState tracks one pair's negotiation lifecycle. A pair holds at most
// one negotiation in flight; a failed edge stays failed until the far side
// re-initiates.
type EdgeState int

const (
	EdgeNegotiating EdgeState = iota
	EdgeConnected
	EdgeFailed
)

// SendFunc delivers a signaling envelope to one peer via the gateway.
type SendFunc func(to string, typ signal.Type, payload any) error

const defaultNegotiationTimeout = 15 * time.Second

type edge struct {
	link  Link
	state EdgeState
	timer *time.Timer
}

// Coordinator maintains the local half of the full mesh. It reacts to
// presence events and relayed negotiation messages; every edge negotiates
// independently, so one failing peer never blocks the others.
type Coordinator struct {
	self    string
	newLink LinkFactory
	send    SendFunc
	timeout time.Duration

	// OnEdgeConnected and OnEdgeFailed are optional observers, invoked
	// outside the coordinator lock.
	OnEdgeConnected func(peer string)
	OnEdgeFailed    func(peer string)

	mu    sync.Mutex
	edges map[string]*edge
}

func NewCoordinator(self string, factory LinkFactory, send SendFunc) *Coordinator {
	return &Coordinator{
		self:    self,
		newLink: factory,
		send:    send,
		timeout: defaultNegotiationTimeout,
		edges:   make(map[string]*edge),
	}
}

// SetRoster seeds the mesh from the room-joined roster: the local side
// initiates toward every peer whose id sorts higher, and waits for offers
// from everyone who sorts lower.
func (c *Coordinator) SetRoster(roster []string) {
	for _, e := range Plan(c.self, roster) {
		if e.Initiator {
			c.initiate(e.Peer)
		}
	}
}

// HandleUserJoined reacts to a newcomer: initiate only if the local id
// sorts lower, otherwise the newcomer's coordinator offers first.
func (c *Coordinator) HandleUserJoined(peer string) {
	if peer == c.self {
		return
	}
	if Initiates(c.self, peer) {
		c.initiate(peer)
	}
}

// HandleUserLeft tears down the single edge toward the departed peer. The
// rest of the mesh is left untouched.
func (c *Coordinator) HandleUserLeft(peer string) {
	c.mu.Lock()
	e, ok := c.edges[peer]
	delete(c.edges, peer)
	c.mu.Unlock()
	if ok {
		stopEdge(e)
		log.Info().Str("module", "mesh").Str("peer", peer).Msg("edge discarded")
	}
}

// HandleOffer answers an inbound offer, creating the responder-side edge.
func (c *Coordinator) HandleOffer(from string, offer webrtc.SessionDescription) {
	c.mu.Lock()
	if e, ok := c.edges[from]; ok && e.state != EdgeFailed {
		c.mu.Unlock()
		log.Warn().Str("module", "mesh").Str("peer", from).Msg("offer for pair already negotiating")
		return
	}
	e, err := c.newEdgeLocked(from)
	c.mu.Unlock()
	if err != nil {
		c.failNew(from, err)
		return
	}

	answer, err := e.link.HandleOffer(offer)
	if err != nil {
		c.fail(from, err)
		return
	}
	if err := c.send(from, signal.TypeAnswer, answer); err != nil {
		c.fail(from, err)
	}
}

// HandleAnswer completes the initiator side of a negotiation.
func (c *Coordinator) HandleAnswer(from string, answer webrtc.SessionDescription) {
	c.mu.Lock()
	e, ok := c.edges[from]
	c.mu.Unlock()
	if !ok || e.state != EdgeNegotiating {
		log.Warn().Str("module", "mesh").Str("peer", from).Msg("unexpected answer")
		return
	}
	if err := e.link.HandleAnswer(answer); err != nil {
		c.fail(from, err)
	}
}

// HandleCandidate applies a relayed trickle candidate. Per-sender FIFO on
// the signaling channel guarantees the offer precedes its candidates.
func (c *Coordinator) HandleCandidate(from string, cand webrtc.ICECandidateInit) {
	c.mu.Lock()
	e, ok := c.edges[from]
	c.mu.Unlock()
	if !ok || e.state == EdgeFailed {
		log.Warn().Str("module", "mesh").Str("peer", from).Msg("candidate without edge")
		return
	}
	if err := e.link.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", from).Msg("add candidate")
	}
}

// Edges reports the current per-peer edge states.
func (c *Coordinator) Edges() map[string]EdgeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]EdgeState, len(c.edges))
	for peer, e := range c.edges {
		out[peer] = e.state
	}
	return out
}

// Close tears down every edge, connected or not.
func (c *Coordinator) Close() {
	c.mu.Lock()
	edges := c.edges
	c.edges = make(map[string]*edge)
	c.mu.Unlock()
	for _, e := range edges {
		stopEdge(e)
	}
}

func (c *Coordinator) initiate(peer string) {
	c.mu.Lock()
	if e, ok := c.edges[peer]; ok && e.state != EdgeFailed {
		c.mu.Unlock()
		return
	}
	e, err := c.newEdgeLocked(peer)
	c.mu.Unlock()
	if err != nil {
		c.failNew(peer, err)
		return
	}

	offer, err := e.link.CreateOffer()
	if err != nil {
		c.fail(peer, err)
		return
	}
	if err := c.send(peer, signal.TypeOffer, offer); err != nil {
		c.fail(peer, err)
		return
	}
	log.Info().Str("module", "mesh").Str("peer", peer).Msg("offer sent")
}

// newEdgeLocked builds the link and registers its callbacks; the caller
// holds the lock. A nil error means the edge is stored in negotiating
// state with its timeout armed.
func (c *Coordinator) newEdgeLocked(peer string) (*edge, error) {
	link, err := c.newLink(peer)
	if err != nil {
		return nil, err
	}
	e := &edge{link: link, state: EdgeNegotiating}
	c.edges[peer] = e

	link.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		if err := c.send(peer, signal.TypeICECandidate, cand); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", peer).Msg("send candidate")
		}
	})
	link.OnStateChange(func(s LinkState) {
		switch s {
		case LinkConnected:
			c.connected(peer)
		case LinkFailed:
			c.fail(peer, nil)
		}
	})
	e.timer = time.AfterFunc(c.timeout, func() { c.timedOut(peer) })
	return e, nil
}

func (c *Coordinator) connected(peer string) {
	c.mu.Lock()
	e, ok := c.edges[peer]
	if ok && e.state == EdgeNegotiating {
		e.state = EdgeConnected
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	c.mu.Unlock()
	if ok && c.OnEdgeConnected != nil {
		c.OnEdgeConnected(peer)
	}
	log.Info().Str("module", "mesh").Str("peer", peer).Msg("edge connected")
}

func (c *Coordinator) timedOut(peer string) {
	c.mu.Lock()
	e, ok := c.edges[peer]
	stillNegotiating := ok && e.state == EdgeNegotiating
	c.mu.Unlock()
	if stillNegotiating {
		log.Warn().Str("module", "mesh").Str("peer", peer).Msg("negotiation timed out")
		c.fail(peer, nil)
	}
}

// fail marks the single edge failed and excludes it from the mesh. The
// peer stays on the presence roster; other edges continue unaffected.
func (c *Coordinator) fail(peer string, err error) {
	c.mu.Lock()
	e, ok := c.edges[peer]
	if !ok || e.state == EdgeFailed {
		c.mu.Unlock()
		return
	}
	e.state = EdgeFailed
	c.mu.Unlock()

	stopEdge(e)
	log.Warn().Err(err).Str("module", "mesh").Str("peer", peer).Msg("negotiation failed")
	if c.OnEdgeFailed != nil {
		c.OnEdgeFailed(peer)
	}
}

// failNew records a failed edge for a pair whose link could not even be
// constructed, so retries are gated the same way as negotiation failures.
func (c *Coordinator) failNew(peer string, err error) {
	c.mu.Lock()
	c.edges[peer] = &edge{state: EdgeFailed}
	c.mu.Unlock()
	log.Warn().Err(err).Str("module", "mesh").Str("peer", peer).Msg("link setup failed")
	if c.OnEdgeFailed != nil {
		c.OnEdgeFailed(peer)
	}
}

func stopEdge(e *edge) {
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.link != nil {
		e.link.Close()
	}
}
