package datacenter

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/auction"
	"github.com/dcsim/dcsim/sim/engine"
)

// Request is one guest a broker asks for, with the workloads it runs.
type Request struct {
	Guest     *sim.Guest
	Workloads []*sim.Workload
	// SubmitAt is when the broker asks for the guest.
	SubmitAt float64
	// DestroyAt destroys the guest at that time. Zero destroys it once all
	// of its workloads have returned.
	DestroyAt float64
	// MaxPrice caps the unit price in auction mode. Zero means no limit.
	MaxPrice decimal.Decimal
	// Scheduler names the workload scheduler of auction clones.
	Scheduler string

	guest    *sim.Guest // the placed instance; a clone in auction mode
	returned int
}

// Broker submits guests and workloads on behalf of one user and collects
// finished workloads. With an auction agent it buys Vms in auction rounds
// instead of asking the datacenter directly; containers are always asked
// for directly.
type Broker struct {
	id         int
	name       string
	datacenter int

	Requests []*Request
	// Returned holds finished workloads in arrival order.
	Returned []*sim.Workload

	agent   *auction.Agent
	waiting map[string][]*Request // auction requests by template key
	byGuest map[string]*Request
	acked   map[string]bool
}

// NewBroker creates a broker that sends its requests to datacenter.
func NewBroker(id int, name string, datacenter int, requests []*Request) *Broker {
	return &Broker{
		id:         id,
		name:       name,
		datacenter: datacenter,
		Requests:   requests,
		waiting:    make(map[string][]*Request),
		byGuest:    make(map[string]*Request),
		acked:      make(map[string]bool),
	}
}

// ID implements engine.Entity.
func (b *Broker) ID() int { return b.id }

// Name implements engine.Entity.
func (b *Broker) Name() string { return b.name }

// BuyIn makes the broker a buyer in the auction run by market.
func (b *Broker) BuyIn(market int, out engine.Messenger) {
	b.agent = auction.NewAgent(b.id, auction.BidderBroker, market, out)
	next := 0
	for _, r := range b.Requests {
		next = max(next, r.Guest.ID)
	}
	b.agent.NextGuestID = func() int { next++; return next }
}

// Agent returns the auction agent, or nil.
func (b *Broker) Agent() *auction.Agent { return b.agent }

// Guests returns the instance serving each request, nil for requests not
// yet served.
func (b *Broker) Guests() []*sim.Guest {
	out := make([]*sim.Guest, len(b.Requests))
	for i, r := range b.Requests {
		out[i] = r.guest
	}
	return out
}

// Start implements engine.Starter.
func (b *Broker) Start(k *engine.Kernel) {
	for _, r := range b.Requests {
		k.ScheduleSelf(b.id, r.SubmitAt, engine.TagGuestCreate, r)
	}
}

// Process implements engine.Entity.
func (b *Broker) Process(k *engine.Kernel, ev *engine.Event) {
	switch ev.Tag {
	case engine.TagGuestCreate:
		if r, ok := payload[*Request](b.name, ev); ok {
			b.request(k, r)
		}
	case engine.TagGuestCreateAck:
		if ack, ok := payload[CreateAck](b.name, ev); ok {
			b.acknowledged(k, ack)
		}
	case engine.TagWorkloadReturn:
		if ret, ok := payload[Return](b.name, ev); ok {
			b.returned(k, ret)
		}
	case engine.TagGuestDestroy:
		if g, ok := payload[*sim.Guest](b.name, ev); ok {
			k.SendNow(b.id, b.datacenter, engine.TagGuestDestroy, g)
		}
	case engine.TagAuctionOpen, engine.TagBidAck, engine.TagAuctionClose, engine.TagAllocationPublication:
		b.auction(k, ev)
	default:
		logrus.Warnf("%s: unexpected event %s dropped", b.name, ev)
	}
}

func (b *Broker) request(k *engine.Kernel, r *Request) {
	if b.agent == nil || r.Guest.Kind == sim.KindContainer {
		b.serve(r, r.Guest)
		k.SendNow(b.id, b.datacenter, engine.TagGuestCreate, r.Guest)
		return
	}
	key := r.Guest.UID()
	b.waiting[key] = append(b.waiting[key], r)
	b.agent.Request(r.Guest, 1, r.MaxPrice)
	logrus.Debugf("[%.2f] %s bids for %s", k.Now(), b.name, key)
}

func (b *Broker) serve(r *Request, g *sim.Guest) {
	r.guest = g
	b.byGuest[g.UID()] = r
}

func (b *Broker) acknowledged(k *engine.Kernel, ack CreateAck) {
	g := ack.Guest
	if !ack.Placed {
		logrus.Infof("[%.2f] %s: %s waits for capacity", k.Now(), b.name, g.UID())
		return
	}
	r, ok := b.byGuest[g.UID()]
	if !ok {
		logrus.Warnf("[%.2f] %s: ack for unknown %s dropped", k.Now(), b.name, g.UID())
		return
	}
	if b.acked[g.UID()] {
		return
	}
	b.acked[g.UID()] = true
	for _, w := range r.Workloads {
		w.OwnerID = b.id
		k.SendNow(b.id, b.datacenter, engine.TagWorkloadSubmit, Submission{Guest: g, Workload: w})
	}
	if r.DestroyAt > 0 {
		k.ScheduleSelf(b.id, r.DestroyAt-k.Now(), engine.TagGuestDestroy, g)
	} else if len(r.Workloads) == 0 {
		logrus.Debugf("[%.2f] %s: %s has no workloads and no destroy time", k.Now(), b.name, g.UID())
	}
}

func (b *Broker) returned(k *engine.Kernel, ret Return) {
	b.Returned = append(b.Returned, ret.Workload)
	r, ok := b.byGuest[ret.Guest.UID()]
	if !ok {
		return
	}
	r.returned++
	if r.DestroyAt == 0 && r.returned == len(r.Workloads) {
		k.SendNow(b.id, b.datacenter, engine.TagGuestDestroy, ret.Guest)
	}
}

// auction drives the buyer side of the auction protocol. Clones created for
// a won award serve the oldest waiting requests for that template.
func (b *Broker) auction(k *engine.Kernel, ev *engine.Event) {
	if b.agent == nil {
		return
	}
	switch ev.Tag {
	case engine.TagAuctionOpen:
		if round, ok := payload[uuid.UUID](b.name, ev); ok {
			b.agent.OnAuctionOpen(round)
		}
	case engine.TagBidAck:
		if accepted, ok := payload[bool](b.name, ev); ok {
			b.agent.OnBidAck(accepted)
		}
	case engine.TagAuctionClose:
		b.agent.OnAuctionClose()
	case engine.TagAllocationPublication:
		result, ok := payload[*auction.BidResult](b.name, ev)
		if !ok {
			return
		}
		// The create requests are still queued, so each clone can be bound to
		// its request before the datacenter sees it.
		clones := b.agent.OnAllocation(result)
		i := 0
		for _, award := range result.AwardsFor(b.id) {
			for n := 0; n < award.Amount && i < len(clones); n++ {
				queue := b.waiting[award.Key]
				if len(queue) == 0 {
					logrus.Warnf("[%.2f] %s: award for %s without a waiting request", k.Now(), b.name, award.Key)
					i++
					continue
				}
				r := queue[0]
				b.waiting[award.Key] = queue[1:]
				c := clones[i]
				c.Scheduler = sim.NewWorkloadScheduler(r.Scheduler, c.NumPes)
				b.serve(r, c)
				i++
			}
		}
	}
}
