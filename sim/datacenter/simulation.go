package datacenter

import (
	"fmt"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/auction"
	"github.com/dcsim/dcsim/sim/engine"
	"github.com/dcsim/dcsim/sim/trace"
	"github.com/dcsim/dcsim/sim/workload"
)

// Entity IDs. Brokers follow the market.
const (
	DatacenterID = 0
	MarketID     = 1
)

// Simulation is a scenario wired to a kernel, ready to run once.
type Simulation struct {
	Kernel     *engine.Kernel
	Datacenter *Datacenter
	// Market is nil unless the auction is enabled.
	Market  *Market
	Brokers []*Broker
	Metrics *sim.Metrics
	Trace   *trace.SimulationTrace
	Horizon float64

	ran bool
}

// Build creates the hosts, orchestrators and entities of sc. Relative trace
// paths resolve against baseDir. bundle and tr may be nil.
func Build(sc *Scenario, bundle *sim.PolicyBundle, baseDir string, tr *trace.SimulationTrace) (*Simulation, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if bundle == nil {
		bundle = &sim.PolicyBundle{}
	}
	if err := bundle.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy bundle: %w", err)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(sc.Seed))
	k := engine.NewKernel()
	metrics := &sim.Metrics{}

	var hosts []*sim.Host
	for _, hs := range sc.Hosts {
		scheduler := hs.Scheduler
		if scheduler == "" {
			scheduler = bundle.Scheduler
		}
		for i := 0; i < hs.Count; i++ {
			hosts = append(hosts, sim.NewHost(len(hosts), sim.NewPeList(hs.Pes, hs.Mips),
				hs.Ram, hs.Bw, hs.Storage, sim.NewGuestScheduler(scheduler), sc.HistoryLength))
		}
	}
	orch, err := NewOrchestrator(hosts, bundle, rng, k, tr)
	if err != nil {
		return nil, err
	}
	dc := NewDatacenter(DatacenterID, "datacenter", orch, sc.Interval, metrics, tr)
	dc.Consolidate = sc.ConsolidationEnabled()
	for _, f := range sc.Failures {
		dc.Failures = append(dc.Failures, Failure{Host: f.Host, At: f.At})
	}
	if sc.hasContainers() {
		containers, err := NewOrchestrator(nil, bundle, rng, k, tr)
		if err != nil {
			return nil, err
		}
		dc.EnableContainers(containers, sc.ContainerScheduler)
	}

	s := &Simulation{Kernel: k, Datacenter: dc, Metrics: metrics, Trace: tr, Horizon: sc.Horizon}
	if s.Horizon == 0 {
		s.Horizon = DefaultHorizon
	}
	builder := workload.NewBuilder(rng.ForSubsystem(sim.SubsystemWorkload), baseDir)
	var templates []*sim.Guest
	lastSubmit := 0.0
	for i, bs := range sc.Brokers {
		id := MarketID + 1 + i
		requests, err := buildRequests(bs, id, builder)
		if err != nil {
			return nil, fmt.Errorf("broker %q: %w", bs.Name, err)
		}
		for _, r := range requests {
			if r.Guest.Kind == sim.KindVm {
				templates = append(templates, r.Guest)
			}
			lastSubmit = max(lastSubmit, r.SubmitAt)
		}
		s.Brokers = append(s.Brokers, NewBroker(id, bs.Name, DatacenterID, requests))
	}

	k.Register(dc)
	if bundle.Auction.Enabled {
		ids := auction.NewIDSource(rng.ForSubsystem(sim.SubsystemAuction))
		s.Market = NewMarket(MarketID, "market", auction.NewAuctioneer(ids), bundle.Auction.Interval, metrics, tr)
		s.Market.Until = lastSubmit
		dc.SellIn(MarketID, k, templates)
		s.Market.AddBidder(DatacenterID)
		for _, b := range s.Brokers {
			b.BuyIn(MarketID, k)
			s.Market.AddBidder(b.ID())
		}
		k.Register(s.Market)
	}
	for _, b := range s.Brokers {
		k.Register(b)
	}
	return s, nil
}

func (s *Scenario) hasContainers() bool {
	for _, b := range s.Brokers {
		for _, g := range b.Guests {
			if g.HostContainers || g.kind() == sim.KindContainer {
				return true
			}
		}
	}
	return false
}

// buildRequests expands the guest groups of a broker into requests with
// their workloads. Guest and workload IDs are unique within the broker.
func buildRequests(bs BrokerSpec, brokerID int, builder *workload.Builder) ([]*Request, error) {
	var requests []*Request
	guestID, workloadID := 0, 0
	for _, gs := range bs.Guests {
		price, err := gs.maxPrice()
		if err != nil {
			return nil, err
		}
		for i := 0; i < gs.Count; i++ {
			var scheduler sim.WorkloadScheduler
			if !gs.HostContainers || gs.Workloads > 0 {
				scheduler = sim.NewWorkloadScheduler(gs.Scheduler, gs.Pes)
			}
			var g *sim.Guest
			if gs.kind() == sim.KindContainer {
				g = sim.NewContainer(guestID, brokerID, gs.Mips, gs.Pes, gs.Ram, gs.Bw, gs.Size, scheduler)
			} else {
				g = sim.NewVm(guestID, brokerID, gs.Mips, gs.Pes, gs.Ram, gs.Bw, gs.Size, scheduler)
			}
			g.HostsContainers = gs.HostContainers
			r := &Request{
				Guest:     g,
				SubmitAt:  gs.SubmitAt,
				DestroyAt: gs.DestroyAt,
				MaxPrice:  price,
				Scheduler: gs.Scheduler,
			}
			for j := 0; j < gs.Workloads; j++ {
				w, err := builder.Build(gs.Workload, workloadID, brokerID, guestID)
				if err != nil {
					return nil, fmt.Errorf("guest %d workload %d: %w", guestID, j, err)
				}
				r.Workloads = append(r.Workloads, w)
				workloadID++
			}
			requests = append(requests, r)
			guestID++
		}
	}
	return requests, nil
}

// Run executes the simulation up to the horizon and finalizes the metrics.
// Panics if called twice.
func (s *Simulation) Run() *sim.Metrics {
	if s.ran {
		panic("Simulation.Run called twice")
	}
	s.ran = true
	s.Kernel.Run(s.Horizon)
	s.finalize()
	return s.Metrics
}

func (s *Simulation) finalize() {
	m := s.Metrics
	m.SimEndedTime = s.Kernel.Now()
	m.GuestsUnplaceable = len(s.Datacenter.Orchestrator.Unplaceable())
	if c := s.Datacenter.Containers; c != nil {
		m.GuestsUnplaceable += len(c.Unplaceable())
	}
	m.ActiveHosts = 0
	for _, h := range s.Datacenter.Orchestrator.Hosts {
		if !h.IsFailed() && h.NumGuests() > 0 {
			m.ActiveHosts++
		}
	}
}
