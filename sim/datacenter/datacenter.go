package datacenter

import (
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/auction"
	"github.com/dcsim/dcsim/sim/engine"
	"github.com/dcsim/dcsim/sim/migration"
	"github.com/dcsim/dcsim/sim/trace"
)

// DefaultSchedulingInterval is the time between utilization samples and
// consolidation passes.
const DefaultSchedulingInterval = 300.0

// Datacenter is the entity that owns the physical hosts. It places guests,
// runs their workloads every scheduling tick, samples utilization, starts
// and finishes migrations, and optionally sells capacity in auction rounds.
type Datacenter struct {
	id   int
	name string

	Orchestrator *Orchestrator
	// Containers places containers on container-hosting Vms. Nil when no Vm
	// hosts containers.
	Containers *Orchestrator

	tracker  *migration.Tracker
	metrics  *sim.Metrics
	trace    *trace.SimulationTrace
	interval float64

	// Consolidate enables OptimizeAllocation on each scheduling boundary.
	Consolidate bool
	// Failures are host failures scheduled when the run starts.
	Failures []Failure

	nextSample  float64
	pendingTick float64
	pending     map[string][]*sim.Workload
	scheduler   string

	seller    *auction.Agent
	templates []*sim.Guest
}

// Failure fails host Host at time At.
type Failure struct {
	Host int
	At   float64
}

// NewDatacenter creates the entity. metrics and tr may be shared with the
// rest of the run; tr may be nil.
func NewDatacenter(id int, name string, orch *Orchestrator, interval float64, metrics *sim.Metrics, tr *trace.SimulationTrace) *Datacenter {
	if interval <= 0 {
		interval = DefaultSchedulingInterval
	}
	if metrics == nil {
		metrics = &sim.Metrics{}
	}
	return &Datacenter{
		id:           id,
		name:         name,
		Orchestrator: orch,
		tracker:      migration.NewTracker(),
		metrics:      metrics,
		trace:        tr,
		interval:     interval,
		Consolidate:  true,
		pendingTick:  math.Inf(1),
		pending:      make(map[string][]*sim.Workload),
	}
}

// ID implements engine.Entity.
func (d *Datacenter) ID() int { return d.id }

// Name implements engine.Entity.
func (d *Datacenter) Name() string { return d.name }

// Tracker returns the in-flight migration tracker.
func (d *Datacenter) Tracker() *migration.Tracker { return d.tracker }

// Metrics returns the metrics the datacenter updates.
func (d *Datacenter) Metrics() *sim.Metrics { return d.metrics }

// EnableContainers creates the container orchestrator, whose hosts are the
// Vms that host containers. scheduler is the guest scheduler of those Vms.
func (d *Datacenter) EnableContainers(orch *Orchestrator, scheduler string) {
	d.Containers = orch
	d.scheduler = scheduler
}

// SellIn makes the datacenter a seller in the auction run by market,
// offering capacity for templates.
func (d *Datacenter) SellIn(market int, out engine.Messenger, templates []*sim.Guest) {
	d.seller = auction.NewAgent(d.id, auction.BidderDatacenter, market, out)
	d.templates = templates
}

// Seller returns the auction agent, or nil.
func (d *Datacenter) Seller() *auction.Agent { return d.seller }

// Start implements engine.Starter.
func (d *Datacenter) Start(k *engine.Kernel) {
	for _, f := range d.Failures {
		k.ScheduleSelf(d.id, f.At, engine.TagHostFailure, f.Host)
	}
}

// Process implements engine.Entity.
func (d *Datacenter) Process(k *engine.Kernel, ev *engine.Event) {
	switch ev.Tag {
	case engine.TagGuestCreate:
		if g, ok := payload[*sim.Guest](d.name, ev); ok {
			d.create(k, g)
		}
	case engine.TagGuestDestroy:
		if g, ok := payload[*sim.Guest](d.name, ev); ok {
			d.destroy(k, g)
		}
	case engine.TagWorkloadSubmit:
		if s, ok := payload[Submission](d.name, ev); ok {
			d.submit(k, s)
		}
	case engine.TagUpdateProcessing:
		d.tick(k)
	case engine.TagGuestMigrate:
		if m, ok := payload[migration.Map](d.name, ev); ok {
			d.startMigration(k, m)
		}
	case engine.TagMigrationComplete:
		if g, ok := payload[*sim.Guest](d.name, ev); ok {
			d.finishMigration(k, g)
		}
	case engine.TagHostFailure:
		if id, ok := payload[int](d.name, ev); ok {
			d.failHost(k, id)
		}
	case engine.TagAuctionOpen, engine.TagBidAck, engine.TagAuctionClose, engine.TagAllocationPublication:
		d.auction(ev)
	default:
		logrus.Warnf("%s: unexpected event %s dropped", d.name, ev)
	}
}

func (d *Datacenter) orchestratorFor(g *sim.Guest) *Orchestrator {
	if g.Kind == sim.KindContainer {
		return d.Containers
	}
	return d.Orchestrator
}

func (d *Datacenter) create(k *engine.Kernel, g *sim.Guest) {
	d.metrics.GuestsRequested++
	if !g.IsAlive() {
		logrus.Warnf("[%.2f] stale reference: create of destroyed %s dropped", k.Now(), g.UID())
		return
	}
	orch := d.orchestratorFor(g)
	if orch == nil {
		logrus.Warnf("[%.2f] %s: no Vm hosts containers; %s dropped", k.Now(), d.name, g.UID())
		k.SendNow(d.id, g.OwnerID, engine.TagGuestCreateAck, CreateAck{Guest: g})
		return
	}
	if !orch.AllocateHostForGuest(g) {
		k.SendNow(d.id, g.OwnerID, engine.TagGuestCreateAck, CreateAck{Guest: g})
		return
	}
	d.placed(k, g)
}

// placed finishes a successful placement: container hosting, queued
// workloads, acknowledgement and a processing tick.
func (d *Datacenter) placed(k *engine.Kernel, g *sim.Guest) {
	d.metrics.GuestsCreated++
	g.Failed = false
	if g.HostsContainers && g.Kind == sim.KindVm && d.Containers != nil && g.ContainerHost() == nil {
		nested := g.EnableContainerHosting(sim.NewGuestScheduler(d.scheduler))
		d.Containers.AddHost(nested)
	}
	if queued := d.pending[g.UID()]; len(queued) > 0 {
		for _, w := range queued {
			w.GuestUID = g.UID()
			g.Scheduler.Submit(w, k.Now())
		}
		g.Host.Reallocate(k.Now())
	}
	delete(d.pending, g.UID())
	k.SendNow(d.id, g.OwnerID, engine.TagGuestCreateAck, CreateAck{Guest: g, Placed: true})
	d.ensureTick(k, k.Now())
}

func (d *Datacenter) destroy(k *engine.Kernel, g *sim.Guest) {
	if !g.IsAlive() {
		logrus.Debugf("[%.2f] %s already destroyed", k.Now(), g.UID())
		return
	}
	d.tracker.Cancel(g)
	if nested := g.ContainerHost(); nested != nil {
		for _, c := range nested.Guests() {
			d.destroy(k, c)
		}
		if d.Containers != nil {
			d.Containers.RemoveHost(nested)
		}
	}
	if orch := d.orchestratorFor(g); orch != nil {
		orch.DeallocateHostForGuest(g)
	}
	g.MarkDestroyed()
	delete(d.pending, g.UID())
	d.metrics.GuestsDestroyed++
	logrus.Debugf("[%.2f] %s destroyed", k.Now(), g.UID())
}

func (d *Datacenter) submit(k *engine.Kernel, s Submission) {
	g := s.Guest
	if !g.IsAlive() {
		logrus.Warnf("[%.2f] stale reference: workload %d for destroyed %s dropped", k.Now(), s.Workload.ID, g.UID())
		return
	}
	if g.Scheduler == nil {
		logrus.Warnf("[%.2f] %s runs no workloads; workload %d dropped", k.Now(), g.UID(), s.Workload.ID)
		return
	}
	if g.Host == nil {
		d.pending[g.UID()] = append(d.pending[g.UID()], s.Workload)
		return
	}
	s.Workload.GuestUID = g.UID()
	g.Scheduler.Submit(s.Workload, k.Now())
	// The new demand takes effect at the tick below.
	g.Host.Reallocate(k.Now())
	d.ensureTick(k, k.Now())
}

// ensureTick schedules a processing tick at t unless one is already due
// no later.
func (d *Datacenter) ensureTick(k *engine.Kernel, t float64) {
	if t >= d.pendingTick {
		return
	}
	d.pendingTick = t
	k.ScheduleSelf(d.id, t-k.Now(), engine.TagUpdateProcessing, nil)
}

// tick advances every guest to now. On a scheduling boundary it also
// samples utilization, retries unplaceable guests and consolidates.
func (d *Datacenter) tick(k *engine.Kernel) {
	now := k.Now()
	if now >= d.pendingTick {
		d.pendingTick = math.Inf(1)
	}
	next := d.process(k)
	if now >= d.nextSample {
		d.sample(now)
		for _, g := range d.Orchestrator.RetryUnplaceable() {
			d.placed(k, g)
		}
		if d.Containers != nil {
			for _, g := range d.Containers.RetryUnplaceable() {
				d.placed(k, g)
			}
		}
		if d.Consolidate {
			for _, m := range d.Orchestrator.OptimizeAllocation(nil) {
				d.startMigration(k, m)
			}
		}
		d.nextSample = (math.Floor(now/d.interval) + 1) * d.interval
	}
	if !d.busy() {
		return
	}
	t := d.nextSample
	if next != sim.NoEvent && next < t {
		t = next
	}
	d.ensureTick(k, t)
}

// process runs UpdateGuestsProcessing on every live host and returns the
// earliest workload completion, or NoEvent.
func (d *Datacenter) process(k *engine.Kernel) float64 {
	now := k.Now()
	next := sim.NoEvent
	for _, h := range d.Orchestrator.Hosts {
		if h.IsFailed() {
			continue
		}
		for _, g := range h.Guests() {
			g.BeingInstantiated = false
		}
		if t := h.UpdateGuestsProcessing(now); t != sim.NoEvent && (next == sim.NoEvent || t < next) {
			next = t
		}
	}
	for _, h := range d.Orchestrator.Hosts {
		for _, g := range h.Guests() {
			d.collect(k, g)
			if nested := g.ContainerHost(); nested != nil {
				for _, c := range nested.Guests() {
					c.BeingInstantiated = false
					d.collect(k, c)
				}
			}
		}
	}
	return next
}

func (d *Datacenter) collect(k *engine.Kernel, g *sim.Guest) {
	if g.Scheduler == nil {
		return
	}
	for _, w := range g.Scheduler.Finished() {
		d.metrics.WorkloadsFinished++
		k.SendNow(d.id, g.OwnerID, engine.TagWorkloadReturn, Return{Guest: g, Workload: w})
	}
}

// busy reports whether anything is left that needs future ticks.
func (d *Datacenter) busy() bool {
	if d.tracker.Count() > 0 || len(d.Orchestrator.Unplaceable()) > 0 || len(d.pending) > 0 {
		return true
	}
	if d.Containers != nil && len(d.Containers.Unplaceable()) > 0 {
		return true
	}
	for _, h := range d.Orchestrator.Hosts {
		for _, g := range h.Guests() {
			if hasWork(g) {
				return true
			}
		}
	}
	return false
}

func hasWork(g *sim.Guest) bool {
	if g.Scheduler != nil && g.Scheduler.HasUnfinished() {
		return true
	}
	if nested := g.ContainerHost(); nested != nil {
		for _, c := range nested.Guests() {
			if hasWork(c) {
				return true
			}
		}
	}
	return false
}

// sample records utilization history and the SLA metrics of active hosts.
func (d *Datacenter) sample(now float64) {
	for _, h := range d.Orchestrator.Hosts {
		if h.IsFailed() {
			continue
		}
		h.RecordUtilization(now)
		if h.NumGuests() > 0 {
			requested := h.RequestedMips(now) / h.TotalMips()
			d.metrics.RecordHostSample(h.UtilizationOfCpu(), requested >= 1)
		}
		for _, g := range h.Guests() {
			if nested := g.ContainerHost(); nested != nil {
				nested.RecordUtilization(now)
			}
		}
	}
}

func (d *Datacenter) startMigration(k *engine.Kernel, m migration.Map) {
	now := k.Now()
	f, err := d.tracker.Start(m, now)
	if err != nil {
		logrus.Warnf("[%.2f] %s not started: %v", now, m, err)
		return
	}
	d.metrics.MigrationsStarted++
	d.trace.RecordMigration(trace.MigrationRecord{
		ID:          m.ID.String(),
		GuestUID:    m.Guest.UID(),
		Clock:       now,
		Source:      m.Source.ID,
		Destination: m.Destination.ID,
		Cause:       m.Cause,
		Selector:    m.Selector,
	})
	k.ScheduleSelf(d.id, f.Finish-now, engine.TagMigrationComplete, m.Guest)
	d.ensureTick(k, d.nextSample)
}

func (d *Datacenter) finishMigration(k *engine.Kernel, g *sim.Guest) {
	now := k.Now()
	f, ok := d.tracker.Get(g)
	if !ok {
		logrus.Debugf("[%.2f] migration of %s was canceled", now, g.UID())
		return
	}
	d.process(k)
	if d.tracker.Complete(g, now) {
		d.Orchestrator.Moved(g, f.Destination)
		d.metrics.MigrationsCompleted++
		d.trace.FinishMigration(f.ID.String(), now)
	} else {
		d.metrics.MigrationsDropped++
		if g.IsAlive() {
			d.Orchestrator.Moved(g, g.Host)
		}
	}
	d.ensureTick(k, now)
}

func (d *Datacenter) failHost(k *engine.Kernel, id int) {
	now := k.Now()
	var host *sim.Host
	for _, h := range d.Orchestrator.Hosts {
		if h.ID == id {
			host = h
			break
		}
	}
	if host == nil || host.IsFailed() {
		logrus.Warnf("[%.2f] stale reference: failure of unknown or failed host %d dropped", now, id)
		return
	}
	logrus.Warnf("[%.2f] %s failed", now, host)
	for _, f := range d.tracker.InFlight() {
		if f.Source == host || f.Destination == host {
			d.tracker.Cancel(f.Guest)
			d.metrics.MigrationsDropped++
		}
	}
	guests := host.Guests()
	host.SetFailed(true)
	for _, g := range guests {
		d.Orchestrator.DeallocateHostForGuest(g)
		g.BeingInstantiated = true
		if !d.Orchestrator.AllocateHostForGuest(g) {
			g.Failed = true
			continue
		}
		g.Failed = false
		logrus.Infof("[%.2f] %s moved off failed %s to %s", now, g.UID(), host, g.Host)
	}
	d.ensureTick(k, now)
}

// auction handles the seller side of the auction protocol.
func (d *Datacenter) auction(ev *engine.Event) {
	if d.seller == nil {
		logrus.Debugf("%s: not selling; %s ignored", d.name, ev.Tag)
		return
	}
	switch ev.Tag {
	case engine.TagAuctionOpen:
		if round, ok := payload[uuid.UUID](d.name, ev); ok {
			d.seller.SetBid(Offer(d.Orchestrator.Hosts, d.templates))
			d.seller.OnAuctionOpen(round)
		}
	case engine.TagBidAck:
		if accepted, ok := payload[bool](d.name, ev); ok {
			d.seller.OnBidAck(accepted)
		}
	case engine.TagAuctionClose:
		d.seller.OnAuctionClose()
	case engine.TagAllocationPublication:
		if result, ok := payload[*auction.BidResult](d.name, ev); ok {
			d.seller.OnAllocation(result)
		}
	}
}

func logWrongPayload(owner string, ev *engine.Event) {
	logrus.Warnf("%s: unexpected payload %T for %s dropped", owner, ev.Payload, ev.Tag)
}
