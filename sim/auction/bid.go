// Package auction implements the decentralized allocation protocol: bidder
// agents submit bids to an auctioneer, which matches requested guests with
// offered capacity when the round closes and publishes a BidResult.
//
// Buyers (brokers) bid for guest templates with a maximum unit price.
// Sellers (datacenters, hosts, or Vms hosting containers) offer a number of
// instances of a template at an ask price. Sellers are ranked by ask price,
// then score, then bidder ID; the lowest wins.
package auction

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidderKind tells buyers from sellers.
type BidderKind string

const (
	BidderBroker     BidderKind = "broker"
	BidderDatacenter BidderKind = "datacenter"
	BidderHost       BidderKind = "host"
	BidderVm         BidderKind = "vm"
)

// IsSeller reports whether bidders of this kind offer capacity.
func (k BidderKind) IsSeller() bool { return k != BidderBroker }

// Item is one line of a bid: Quantity instances of the guest template
// identified by Key at a unit Price. For a buyer Price is the most it pays
// (zero means no limit); for a seller it is the ask.
type Item struct {
	Key      string
	Quantity int
	Price    decimal.Decimal
}

// Bid is one bidder's offer for one round.
type Bid struct {
	ID         uuid.UUID
	Round      uuid.UUID
	Bidder     int
	BidderKind BidderKind
	Items      []Item
	// Score breaks price ties between sellers; lower wins.
	Score float64
}

// Item returns the line for key, if any.
func (b *Bid) Item(key string) (Item, bool) {
	for _, it := range b.Items {
		if it.Key == key {
			return it, true
		}
	}
	return Item{}, false
}

func (b *Bid) String() string {
	return fmt.Sprintf("bid[%s %d items=%d score=%.4f]", b.BidderKind, b.Bidder, len(b.Items), b.Score)
}

// Award is one (buyer template, seller, amount, price) tuple of a result.
type Award struct {
	Buyer  int
	Key    string
	Seller int
	Amount int
	Price  decimal.Decimal
}

// Total is Amount × Price.
func (a Award) Total() decimal.Decimal {
	return a.Price.Mul(decimal.NewFromInt(int64(a.Amount)))
}

// BidResult maps each requested guest template to the capacity awarded to it.
type BidResult struct {
	Round  uuid.UUID
	Awards []Award
	// Unserved counts requested instances per key that found no seller.
	Unserved map[string]int
}

// AwardsFor returns the awards won by buyer, in award order.
func (r *BidResult) AwardsFor(buyer int) []Award {
	var out []Award
	for _, a := range r.Awards {
		if a.Buyer == buyer {
			out = append(out, a)
		}
	}
	return out
}

// AwardsTo returns the awards granted to seller.
func (r *BidResult) AwardsTo(seller int) []Award {
	var out []Award
	for _, a := range r.Awards {
		if a.Seller == seller {
			out = append(out, a)
		}
	}
	return out
}

// IsWinner reports whether bidder won anything as buyer or seller.
func (r *BidResult) IsWinner(bidder int) bool {
	for _, a := range r.Awards {
		if a.Buyer == bidder || a.Seller == bidder {
			return true
		}
	}
	return false
}

// IDSource mints round and bid identifiers from a reader. Backed by a
// seeded RNG it makes IDs reproducible.
type IDSource struct {
	r io.Reader
}

// NewIDSource creates an IDSource. A nil reader uses crypto randomness.
func NewIDSource(r io.Reader) *IDSource { return &IDSource{r: r} }

// New returns a fresh version-4 UUID.
func (s *IDSource) New() uuid.UUID {
	if s == nil || s.r == nil {
		return uuid.New()
	}
	id, err := uuid.NewRandomFromReader(s.r)
	if err != nil {
		return uuid.New()
	}
	return id
}
