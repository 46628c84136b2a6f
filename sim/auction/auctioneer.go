package auction

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAuctionClosed means no round is open.
	ErrAuctionClosed = errors.New("auction is closed")
	// ErrAuctionOpen means a round is already running.
	ErrAuctionOpen = errors.New("auction already open")
	// ErrDuplicateBid means the bidder already holds a bid in this round.
	ErrDuplicateBid = errors.New("bidder already bid in this round")
	// ErrWrongRound means the bid was made for another round.
	ErrWrongRound = errors.New("bid is for another round")
)

// Auctioneer holds the bids of one round at a time.
type Auctioneer struct {
	ids   *IDSource
	round uuid.UUID
	open  bool
	bids  []*Bid
	seen  map[int]bool
}

// NewAuctioneer creates a closed auctioneer.
func NewAuctioneer(ids *IDSource) *Auctioneer {
	return &Auctioneer{ids: ids}
}

// IsOpen reports whether a round is accepting bids.
func (a *Auctioneer) IsOpen() bool { return a.open }

// Round returns the current (or last) round ID.
func (a *Auctioneer) Round() uuid.UUID { return a.round }

// Open starts a new round and returns its ID.
func (a *Auctioneer) Open() (uuid.UUID, error) {
	if a.open {
		return uuid.Nil, fmt.Errorf("round %s: %w", a.round, ErrAuctionOpen)
	}
	a.round = a.ids.New()
	a.open = true
	a.bids = nil
	a.seen = make(map[int]bool)
	logrus.Debugf("auction %s open", a.round)
	return a.round, nil
}

// ReceiveBid accepts b into the open round. A bid without a round is
// stamped with the current one; a bid without an ID gets one.
func (a *Auctioneer) ReceiveBid(b *Bid) error {
	if !a.open {
		return ErrAuctionClosed
	}
	if b.Round == uuid.Nil {
		b.Round = a.round
	}
	if b.Round != a.round {
		return fmt.Errorf("bid %s for round %s: %w", b.ID, b.Round, ErrWrongRound)
	}
	if a.seen[b.Bidder] {
		return fmt.Errorf("bidder %d: %w", b.Bidder, ErrDuplicateBid)
	}
	if b.ID == uuid.Nil {
		b.ID = a.ids.New()
	}
	a.seen[b.Bidder] = true
	a.bids = append(a.bids, b)
	return nil
}

// Bids returns the bids received so far, in arrival order.
func (a *Auctioneer) Bids() []*Bid { return append([]*Bid(nil), a.bids...) }

// Close ends the round and determines the winners.
//
// Buyers are served in arrival order. For each requested item, sellers
// offering the same key are ranked by ask price, score, then bidder ID and
// fill the request until it is met or their quantity runs out. A seller whose
// ask exceeds a buyer's limit is skipped for that buyer.
func (a *Auctioneer) Close() (*BidResult, error) {
	if !a.open {
		return nil, ErrAuctionClosed
	}
	a.open = false

	var buyers, sellers []*Bid
	for _, b := range a.bids {
		if b.BidderKind.IsSeller() {
			sellers = append(sellers, b)
		} else {
			buyers = append(buyers, b)
		}
	}
	sort.SliceStable(sellers, func(i, j int) bool { return sellers[i].Bidder < sellers[j].Bidder })

	remaining := make(map[*Bid]map[string]int, len(sellers))
	for _, s := range sellers {
		m := make(map[string]int, len(s.Items))
		for _, it := range s.Items {
			m[it.Key] += it.Quantity
		}
		remaining[s] = m
	}

	result := &BidResult{Round: a.round, Unserved: make(map[string]int)}
	for _, buyer := range buyers {
		for _, want := range buyer.Items {
			need := want.Quantity
			for _, s := range rankSellers(sellers, want.Key) {
				if need == 0 {
					break
				}
				ask, _ := s.Item(want.Key)
				if !want.Price.IsZero() && ask.Price.GreaterThan(want.Price) {
					continue
				}
				n := min(need, remaining[s][want.Key])
				if n <= 0 {
					continue
				}
				remaining[s][want.Key] -= n
				need -= n
				result.Awards = append(result.Awards, Award{
					Buyer: buyer.Bidder, Key: want.Key, Seller: s.Bidder, Amount: n, Price: ask.Price,
				})
			}
			if need > 0 {
				result.Unserved[want.Key] += need
			}
		}
	}
	logrus.Infof("auction %s closed: %d bids, %d awards", a.round, len(a.bids), len(result.Awards))
	return result, nil
}

// rankSellers returns the sellers offering key, best first.
func rankSellers(sellers []*Bid, key string) []*Bid {
	var out []*Bid
	for _, s := range sellers {
		if _, ok := s.Item(key); ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, _ := out[i].Item(key)
		pj, _ := out[j].Item(key)
		if c := pi.Price.Cmp(pj.Price); c != 0 {
			return c < 0
		}
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Bidder < out[j].Bidder
	})
	return out
}
