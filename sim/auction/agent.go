package auction

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/engine"
)

// State is a bidder agent's position in the round protocol.
type State int

const (
	WaitingForAuctionOpen State = iota
	Bidding
	AwaitingResult
	Won
	Lost
)

func (s State) String() string {
	switch s {
	case WaitingForAuctionOpen:
		return "waiting-for-auction-open"
	case Bidding:
		return "bidding"
	case AwaitingResult:
		return "awaiting-result"
	case Won:
		return "won"
	case Lost:
		return "lost"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Agent is one bidder. It holds at most one outstanding bid and submits it
// only while a round is open.
//
//	WaitingForAuctionOpen -> Bidding -> AwaitingResult -> Won | Lost -> WaitingForAuctionOpen
type Agent struct {
	ID         int
	Kind       BidderKind
	Auctioneer int

	// NextGuestID numbers the clones created from won awards.
	NextGuestID func() int
	// NewScheduler builds the workload scheduler of each clone. Nil gives a
	// time-shared scheduler.
	NewScheduler func(g *sim.Guest) sim.WorkloadScheduler

	out         engine.Messenger
	state       State
	outcome     State
	auctionOpen bool
	bid         *Bid
	accepted    bool
	templates   map[string]*sim.Guest
	clones      []*sim.Guest
}

// NewAgent creates an agent that talks to auctioneer through out.
func NewAgent(id int, kind BidderKind, auctioneer int, out engine.Messenger) *Agent {
	next := 0
	return &Agent{
		ID:          id,
		Kind:        kind,
		Auctioneer:  auctioneer,
		out:         out,
		templates:   make(map[string]*sim.Guest),
		NextGuestID: func() int { next++; return next },
	}
}

// State returns the protocol state.
func (a *Agent) State() State { return a.state }

// Outcome returns Won or Lost for the last round the agent bid in, or
// WaitingForAuctionOpen before any result.
func (a *Agent) Outcome() State { return a.outcome }

// AuctionOpen reports whether the agent believes a round is open.
func (a *Agent) AuctionOpen() bool { return a.auctionOpen }

// Bid returns the outstanding bid, or nil.
func (a *Agent) Bid() *Bid { return a.bid }

// Accepted reports the last bid acknowledgement.
func (a *Agent) Accepted() bool { return a.accepted }

// Clones returns the guests instantiated from awards so far.
func (a *Agent) Clones() []*sim.Guest { return append([]*sim.Guest(nil), a.clones...) }

// SetBid replaces the outstanding bid.
func (a *Agent) SetBid(b *Bid) {
	if b != nil {
		b.Bidder = a.ID
		b.BidderKind = a.Kind
	}
	a.bid = b
}

// Request adds quantity instances of template to the agent's buy bid, paying
// at most maxPrice per instance (zero for no limit).
func (a *Agent) Request(template *sim.Guest, quantity int, maxPrice decimal.Decimal) {
	key := template.UID()
	a.templates[key] = template
	if a.bid == nil {
		a.SetBid(&Bid{})
	}
	for i := range a.bid.Items {
		if a.bid.Items[i].Key == key {
			a.bid.Items[i].Quantity += quantity
			return
		}
	}
	a.bid.Items = append(a.bid.Items, Item{Key: key, Quantity: quantity, Price: maxPrice})
}

// ReadyToBid requires both an open round and a bid in hand.
func (a *Agent) ReadyToBid() bool { return a.auctionOpen && a.bid != nil }

// OnAuctionOpen marks the round open and submits the bid if one is ready.
// Returns whether a bid was sent.
func (a *Agent) OnAuctionOpen(round uuid.UUID) bool {
	a.auctionOpen = true
	a.accepted = false
	a.state = Bidding
	if !a.ReadyToBid() {
		return false
	}
	a.bid.Round = round
	a.bid.ID = uuid.Nil
	a.out.SendNow(a.ID, a.Auctioneer, engine.TagAuctionBid, a.bid)
	a.state = AwaitingResult
	return true
}

// OnBidAck records whether the auctioneer took the bid.
func (a *Agent) OnBidAck(accepted bool) {
	a.accepted = accepted
	if !accepted && a.state == AwaitingResult {
		a.state = Bidding
	}
}

// OnAuctionClose marks the round closed.
func (a *Agent) OnAuctionClose() {
	a.auctionOpen = false
	if a.state == Bidding {
		a.state = WaitingForAuctionOpen
	}
}

// OnAllocation inspects a published result. A winning buyer clones each
// awarded template Amount times and sends one create request per clone to
// the awarding seller. Awarded quantities are removed from the bid; the
// rest stays for the next round. The agent then waits for the next round;
// Outcome tells whether it won. Returns the clones created.
func (a *Agent) OnAllocation(result *BidResult) []*sim.Guest {
	if result == nil || !result.IsWinner(a.ID) {
		if a.state == AwaitingResult {
			a.outcome = Lost
			a.state = WaitingForAuctionOpen
		}
		return nil
	}
	a.outcome = Won
	a.state = WaitingForAuctionOpen
	if a.Kind.IsSeller() {
		a.bid = nil
		return nil
	}

	var created []*sim.Guest
	for _, award := range result.AwardsFor(a.ID) {
		template, ok := a.templates[award.Key]
		if !ok {
			logrus.Warnf("agent %d: award for unknown template %s dropped", a.ID, award.Key)
			continue
		}
		for i := 0; i < award.Amount; i++ {
			clone := template.Clone(a.NextGuestID(), nil)
			clone.Scheduler = a.newScheduler(clone)
			a.out.SendNow(a.ID, award.Seller, engine.TagGuestCreate, clone)
			created = append(created, clone)
		}
		a.consume(award.Key, award.Amount)
	}
	a.clones = append(a.clones, created...)
	return created
}

func (a *Agent) newScheduler(g *sim.Guest) sim.WorkloadScheduler {
	if a.NewScheduler != nil {
		return a.NewScheduler(g)
	}
	return sim.NewTimeSharedWorkloadScheduler()
}

func (a *Agent) consume(key string, n int) {
	if a.bid == nil {
		return
	}
	items := a.bid.Items[:0]
	for _, it := range a.bid.Items {
		if it.Key == key {
			it.Quantity -= n
		}
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	a.bid.Items = items
	if len(items) == 0 {
		a.bid = nil
	}
}
