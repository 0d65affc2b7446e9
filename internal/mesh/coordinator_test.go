package mesh

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/huddlehq/huddle/internal/signal"
)

type fakeLink struct {
	peer      string
	failOffer bool

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onState func(LinkState)
	offers  int
	answers int
	cands   []webrtc.ICECandidateInit
	closed  bool
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failOffer {
		return webrtc.SessionDescription{}, errors.New("offer failed")
	}
	l.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-for-" + l.peer}, nil
}

func (l *fakeLink) HandleOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-from-" + l.peer}, nil
}

func (l *fakeLink) HandleAnswer(webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers++
	return nil
}

func (l *fakeLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cands = append(l.cands, c)
	return nil
}

func (l *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onICE = fn
}

func (l *fakeLink) OnStateChange(fn func(LinkState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *fakeLink) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) gatherCandidate(c webrtc.ICECandidateInit) {
	l.mu.Lock()
	fn := l.onICE
	l.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (l *fakeLink) stateChange(s LinkState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

type sent struct {
	to  string
	typ signal.Type
}

type recorder struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recorder) send(to string, typ signal.Type, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{to: to, typ: typ})
	return nil
}

func (r *recorder) byType(typ signal.Type) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, m := range r.msgs {
		if m.typ == typ {
			out = append(out, m)
		}
	}
	return out
}

func newTestCoordinator(self string) (*Coordinator, *recorder, map[string]*fakeLink) {
	rec := &recorder{}
	links := make(map[string]*fakeLink)
	var mu sync.Mutex
	factory := func(peer string) (Link, error) {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := links[peer]; ok {
			return l, nil
		}
		l := &fakeLink{peer: peer}
		links[peer] = l
		return l, nil
	}
	return NewCoordinator(self, factory, rec.send), rec, links
}

func TestRosterInitiatesOnlyTowardHigherIDs(t *testing.T) {
	c, rec, links := newTestCoordinator("bbb")
	c.SetRoster([]string{"aaa", "bbb", "ccc"})

	offers := rec.byType(signal.TypeOffer)
	if len(offers) != 1 || offers[0].to != "ccc" {
		t.Fatalf("offers %v, want exactly one toward ccc", offers)
	}
	if _, ok := links["aaa"]; ok {
		t.Error("created a link toward a lower-sorting peer; that side offers first")
	}
}

func TestUserJoinedInitiatesWhenLower(t *testing.T) {
	c, rec, _ := newTestCoordinator("bbb")

	c.HandleUserJoined("ccc")
	if got := rec.byType(signal.TypeOffer); len(got) != 1 || got[0].to != "ccc" {
		t.Fatalf("offers %v, want one toward ccc", got)
	}

	c.HandleUserJoined("aaa")
	if got := rec.byType(signal.TypeOffer); len(got) != 1 {
		t.Fatalf("initiated toward lower-sorting newcomer: %v", got)
	}
}

func TestInboundOfferAnswered(t *testing.T) {
	c, rec, links := newTestCoordinator("bbb")

	c.HandleOffer("aaa", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"})

	answers := rec.byType(signal.TypeAnswer)
	if len(answers) != 1 || answers[0].to != "aaa" {
		t.Fatalf("answers %v, want one toward aaa", answers)
	}
	if links["aaa"] == nil {
		t.Fatal("no responder-side link created")
	}
	if st := c.Edges()["aaa"]; st != EdgeNegotiating {
		t.Errorf("edge state %v, want negotiating", st)
	}
}

func TestSingleNegotiationInFlightPerPair(t *testing.T) {
	c, rec, _ := newTestCoordinator("bbb")

	c.HandleUserJoined("ccc")
	c.HandleUserJoined("ccc")
	c.SetRoster([]string{"bbb", "ccc"})

	if got := rec.byType(signal.TypeOffer); len(got) != 1 {
		t.Fatalf("pair renegotiated while in flight: %d offers", len(got))
	}
}

func TestUserLeftTearsDownSingleEdge(t *testing.T) {
	c, _, links := newTestCoordinator("aaa")
	c.SetRoster([]string{"aaa", "bbb", "ccc"})

	c.HandleUserLeft("bbb")

	if !links["bbb"].isClosed() {
		t.Error("departed peer's link not closed")
	}
	if links["ccc"].isClosed() {
		t.Error("unrelated edge torn down")
	}
	edges := c.Edges()
	if _, ok := edges["bbb"]; ok {
		t.Error("departed peer still in edge set")
	}
	if _, ok := edges["ccc"]; !ok {
		t.Error("surviving edge discarded")
	}
}

func TestFailedEdgeDoesNotAbortOthers(t *testing.T) {
	rec := &recorder{}
	links := make(map[string]*fakeLink)
	var mu sync.Mutex
	factory := func(peer string) (Link, error) {
		mu.Lock()
		defer mu.Unlock()
		l := &fakeLink{peer: peer, failOffer: peer == "bbb"}
		links[peer] = l
		return l, nil
	}
	c := NewCoordinator("aaa", factory, rec.send)

	var failedMu sync.Mutex
	var failed []string
	c.OnEdgeFailed = func(peer string) {
		failedMu.Lock()
		failed = append(failed, peer)
		failedMu.Unlock()
	}

	c.SetRoster([]string{"aaa", "bbb", "ccc"})

	if st := c.Edges()["bbb"]; st != EdgeFailed {
		t.Errorf("bbb state %v, want failed", st)
	}
	if offers := rec.byType(signal.TypeOffer); len(offers) != 1 || offers[0].to != "ccc" {
		t.Fatalf("offers %v, want the ccc negotiation to proceed", offers)
	}
	failedMu.Lock()
	defer failedMu.Unlock()
	if len(failed) != 1 || failed[0] != "bbb" {
		t.Errorf("failure callbacks %v, want [bbb]", failed)
	}
}

func TestAnswerAndConnectionCompleteNegotiation(t *testing.T) {
	c, _, links := newTestCoordinator("aaa")
	c.HandleUserJoined("bbb")

	c.HandleAnswer("bbb", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "y"})
	if links["bbb"].answers != 1 {
		t.Fatal("answer not applied to the link")
	}

	links["bbb"].stateChange(LinkConnected)
	if st := c.Edges()["bbb"]; st != EdgeConnected {
		t.Errorf("edge state %v, want connected", st)
	}
}

func TestCandidatesRoutedToEdge(t *testing.T) {
	c, rec, links := newTestCoordinator("aaa")
	c.HandleUserJoined("bbb")

	// Local candidates go out through the signaling channel.
	links["bbb"].gatherCandidate(webrtc.ICECandidateInit{Candidate: "local"})
	if got := rec.byType(signal.TypeICECandidate); len(got) != 1 || got[0].to != "bbb" {
		t.Fatalf("candidate sends %v, want one toward bbb", got)
	}

	// Remote candidates land on the matching link.
	c.HandleCandidate("bbb", webrtc.ICECandidateInit{Candidate: "remote"})
	if n := len(links["bbb"].cands); n != 1 {
		t.Fatalf("link received %d candidates, want 1", n)
	}

	// No edge, no crash.
	c.HandleCandidate("zzz", webrtc.ICECandidateInit{Candidate: "stray"})
}

func TestNegotiationTimeoutMarksEdgeFailed(t *testing.T) {
	c, _, links := newTestCoordinator("aaa")
	c.timeout = 20 * time.Millisecond

	c.HandleUserJoined("bbb")

	deadline := time.After(time.Second)
	for c.Edges()["bbb"] != EdgeFailed || !links["bbb"].isClosed() {
		select {
		case <-deadline:
			t.Fatal("edge never timed out")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
