package datacenter

import (
	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/auction"
	"github.com/dcsim/dcsim/sim/engine"
	"github.com/dcsim/dcsim/sim/trace"
)

const (
	// DefaultAuctionInterval is the time between auction rounds.
	DefaultAuctionInterval = 60.0
	// BidWindow is how long a round stays open for bids.
	BidWindow = 0.1
	// maxIdleRounds ends the market after that many consecutive rounds with
	// buyer bids and no award.
	maxIdleRounds = 3
)

// Market is the entity that runs auction rounds. Each round is opened for
// every bidder, closed after BidWindow, and its result published to all.
type Market struct {
	id   int
	name string

	auctioneer *auction.Auctioneer
	bidders    []int
	interval   float64
	// Until keeps rounds running at least up to that time, so buyers that
	// submit late still find a round.
	Until float64

	metrics *sim.Metrics
	trace   *trace.SimulationTrace
	idle    int
	last    *auction.BidResult
}

// NewMarket creates a market. metrics and tr may be nil.
func NewMarket(id int, name string, auctioneer *auction.Auctioneer, interval float64, metrics *sim.Metrics, tr *trace.SimulationTrace) *Market {
	if interval <= 0 {
		interval = DefaultAuctionInterval
	}
	if metrics == nil {
		metrics = &sim.Metrics{}
	}
	return &Market{id: id, name: name, auctioneer: auctioneer, interval: interval, metrics: metrics, trace: tr}
}

// ID implements engine.Entity.
func (m *Market) ID() int { return m.id }

// Name implements engine.Entity.
func (m *Market) Name() string { return m.name }

// AddBidder subscribes an entity to round announcements.
func (m *Market) AddBidder(id int) { m.bidders = append(m.bidders, id) }

// LastResult returns the result of the last closed round, or nil.
func (m *Market) LastResult() *auction.BidResult { return m.last }

// Start implements engine.Starter.
func (m *Market) Start(k *engine.Kernel) {
	k.ScheduleSelf(m.id, 0, engine.TagAuctionOpen, nil)
}

// Process implements engine.Entity.
func (m *Market) Process(k *engine.Kernel, ev *engine.Event) {
	switch ev.Tag {
	case engine.TagAuctionOpen:
		m.open(k)
	case engine.TagAuctionBid:
		if b, ok := payload[*auction.Bid](m.name, ev); ok {
			m.bid(k, ev.Source, b)
		}
	case engine.TagAuctionClose:
		m.close(k)
	default:
		logrus.Warnf("%s: unexpected event %s dropped", m.name, ev)
	}
}

func (m *Market) open(k *engine.Kernel) {
	round, err := m.auctioneer.Open()
	if err != nil {
		logrus.Warnf("[%.2f] %s: %v", k.Now(), m.name, err)
		return
	}
	logrus.Infof("[%.2f] auction %s open for %d bidders", k.Now(), round, len(m.bidders))
	for _, id := range m.bidders {
		k.SendNow(m.id, id, engine.TagAuctionOpen, round)
	}
	k.ScheduleSelf(m.id, BidWindow, engine.TagAuctionClose, nil)
}

func (m *Market) bid(k *engine.Kernel, from int, b *auction.Bid) {
	err := m.auctioneer.ReceiveBid(b)
	if err != nil {
		logrus.Warnf("[%.2f] %s: bid from %d rejected: %v", k.Now(), m.name, from, err)
	}
	k.SendNow(m.id, from, engine.TagBidAck, err == nil)
}

func (m *Market) close(k *engine.Kernel) {
	now := k.Now()
	bids := m.auctioneer.Bids()
	result, err := m.auctioneer.Close()
	if err != nil {
		logrus.Warnf("[%.2f] %s: %v", now, m.name, err)
		return
	}
	m.last = result
	m.metrics.AuctionRounds++
	m.record(now, len(bids), result)
	for _, id := range m.bidders {
		k.SendNow(m.id, id, engine.TagAuctionClose, nil)
	}
	for _, id := range m.bidders {
		k.SendNow(m.id, id, engine.TagAllocationPublication, result)
	}

	buyers := 0
	for _, b := range bids {
		if !b.BidderKind.IsSeller() {
			buyers++
		}
	}
	switch {
	case buyers == 0:
		m.idle = 0
	case len(result.Awards) == 0:
		m.idle++
	default:
		m.idle = 0
	}
	if m.idle >= maxIdleRounds {
		logrus.Warnf("[%.2f] %s: %d rounds without awards; market closed", now, m.name, m.idle)
		return
	}
	if buyers == 0 && now >= m.Until {
		logrus.Infof("[%.2f] %s: no buyers left; market closed", now, m.name)
		return
	}
	k.ScheduleSelf(m.id, m.interval-BidWindow, engine.TagAuctionOpen, nil)
}

func (m *Market) record(now float64, bids int, result *auction.BidResult) {
	rec := trace.AuctionRecord{Round: result.Round.String(), Clock: now, Bids: bids}
	for _, a := range result.Awards {
		rec.Awards = append(rec.Awards, trace.AwardRecord{
			Buyer: a.Buyer, Seller: a.Seller, Key: a.Key, Amount: a.Amount, Price: a.Price.String(),
		})
	}
	for _, n := range result.Unserved {
		rec.Unserved += n
	}
	m.trace.RecordAuction(rec)
}
