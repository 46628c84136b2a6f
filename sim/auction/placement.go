package auction

import (
	"github.com/shopspring/decimal"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/policy"
)

// placementBuyer is the bidder ID used for the single-guest request.
const placementBuyer = -1

// HostScore is the score a host bids for one more guest:
//
//	((1 - ramUsed) + (1 - mipsUsed) + (1 - 1/numGuests)) / 3
//
// where numGuests counts the residents plus the requested guest.
func HostScore(h *sim.Host) float64 {
	n := float64(h.NumGuests() + 1)
	return ((1 - h.UtilizationOfRam()) + (1 - h.UtilizationOfCpu()) + (1 - 1/n)) / 3
}

// HostBid builds a seller bid offering one instance of key at score.
func HostBid(bidder int, key string, score float64) *Bid {
	return &Bid{
		Bidder:     bidder,
		BidderKind: BidderHost,
		Items:      []Item{{Key: key, Quantity: 1, Price: decimal.NewFromFloat(score).Round(6)}},
		Score:      score,
	}
}

// Placement places a guest by running a sealed auction among the candidate
// hosts. Each host bids HostScore and the lowest bid wins.
type Placement struct {
	auctioneer *Auctioneer
	last       *BidResult
	// Score is the bid function; HostScore when nil.
	Score func(h *sim.Host) float64
}

// NewPlacement creates an auction placement policy.
func NewPlacement(ids *IDSource) *Placement {
	return &Placement{auctioneer: NewAuctioneer(ids)}
}

// LastResult returns the result of the most recent round.
func (p *Placement) LastResult() *BidResult { return p.last }

// Select implements policy.Policy.
func (p *Placement) Select(candidates []*sim.Host, g *sim.Guest, excluded policy.Set[*sim.Host]) (*sim.Host, error) {
	eligible := policy.Eligible(candidates, excluded)
	if len(eligible) == 0 {
		return nil, policy.NoCandidate("auction")
	}
	score := p.Score
	if score == nil {
		score = HostScore
	}
	if _, err := p.auctioneer.Open(); err != nil {
		return nil, err
	}
	key := g.UID()
	if err := p.auctioneer.ReceiveBid(&Bid{
		Bidder: placementBuyer, BidderKind: BidderBroker, Items: []Item{{Key: key, Quantity: 1}},
	}); err != nil {
		return nil, err
	}
	for i, h := range eligible {
		if err := p.auctioneer.ReceiveBid(HostBid(i, key, score(h))); err != nil {
			return nil, err
		}
	}
	result, err := p.auctioneer.Close()
	if err != nil {
		return nil, err
	}
	p.last = result
	awards := result.AwardsFor(placementBuyer)
	if len(awards) == 0 {
		return nil, policy.NoCandidate("auction")
	}
	return eligible[awards[0].Seller], nil
}
