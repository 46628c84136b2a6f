package sim

// ResourceProvisioner tracks one scalar resource (RAM, bandwidth or storage)
// on a host. Allocation is best-effort: a request that does not fit fails and
// leaves the table untouched.
//
// Invariant: available == capacity - Σ table values, and available >= 0.
type ResourceProvisioner struct {
	kind      ResourceKind
	capacity  int64
	available int64
	table     map[string]int64 // guest UID -> allocated amount
}

// NewResourceProvisioner creates a provisioner with all capacity available.
func NewResourceProvisioner(kind ResourceKind, capacity int64) *ResourceProvisioner {
	return &ResourceProvisioner{
		kind:      kind,
		capacity:  capacity,
		available: capacity,
		table:     make(map[string]int64),
	}
}

// Kind returns the resource this provisioner manages.
func (p *ResourceProvisioner) Kind() ResourceKind { return p.kind }

// Capacity returns the total amount managed by the provisioner.
func (p *ResourceProvisioner) Capacity() int64 { return p.capacity }

// Available returns the amount not allocated to any guest.
func (p *ResourceProvisioner) Available() int64 { return p.available }

// Used returns capacity minus available.
func (p *ResourceProvisioner) Used() int64 { return p.capacity - p.available }

// Allocated returns the amount held by the guest, or zero.
func (p *ResourceProvisioner) Allocated(g *Guest) int64 { return p.table[g.UID()] }

// Allocate replaces the guest's allocation with amount, clamped down to the
// guest's declared ceiling for this resource. On failure the previous
// allocation is restored and false is returned.
func (p *ResourceProvisioner) Allocate(g *Guest, amount int64) bool {
	if ceiling := g.Ceiling(p.kind); amount > ceiling {
		amount = ceiling
	}
	uid := g.UID()
	prev, had := p.table[uid]
	if had {
		p.available += prev
		delete(p.table, uid)
	}
	if amount < 0 || amount > p.available {
		if had {
			p.available -= prev
			p.table[uid] = prev
		}
		return false
	}
	p.available -= amount
	p.table[uid] = amount
	return true
}

// IsSuitable reports whether Allocate(g, amount) would succeed. The probe
// allocates, deallocates and restores the prior allocation; single-threaded
// event processing guarantees no caller observes the intermediate state.
func (p *ResourceProvisioner) IsSuitable(g *Guest, amount int64) bool {
	uid := g.UID()
	prev, had := p.table[uid]
	ok := p.Allocate(g, amount)
	p.Deallocate(g)
	if had {
		p.available -= prev
		p.table[uid] = prev
	}
	return ok
}

// Deallocate returns the guest's allocation to the pool. Removing a guest
// that holds nothing is a no-op.
func (p *ResourceProvisioner) Deallocate(g *Guest) {
	uid := g.UID()
	if amount, ok := p.table[uid]; ok {
		p.available += amount
		delete(p.table, uid)
	}
}

// DeallocateAll resets the provisioner to its initial state.
func (p *ResourceProvisioner) DeallocateAll() {
	p.available = p.capacity
	p.table = make(map[string]int64)
}

// Guests returns the number of table entries.
func (p *ResourceProvisioner) Guests() int { return len(p.table) }

// PeProvisioner tracks the MIPS of one physical PE shared among the virtual
// PEs of the guests placed on it. A guest may hold several virtual-PE shares
// on the same physical PE.
type PeProvisioner struct {
	capacity  float64
	available float64
	table     map[string][]float64 // guest UID -> per-virtual-PE MIPS
}

// NewPeProvisioner creates a provisioner for a PE rated at mips.
func NewPeProvisioner(mips float64) *PeProvisioner {
	return &PeProvisioner{
		capacity:  mips,
		available: mips,
		table:     make(map[string][]float64),
	}
}

// Capacity returns the PE's MIPS rating.
func (p *PeProvisioner) Capacity() float64 { return p.capacity }

// Available returns MIPS not allocated to any guest.
func (p *PeProvisioner) Available() float64 { return p.available }

// Utilization returns the allocated fraction of the PE.
func (p *PeProvisioner) Utilization() float64 {
	if p.capacity == 0 {
		return 0
	}
	return (p.capacity - p.available) / p.capacity
}

// Allocate adds one virtual-PE share of mips for the guest.
// Returns false, changing nothing, if mips exceeds the available MIPS.
func (p *PeProvisioner) Allocate(uid string, mips float64) bool {
	if mips < 0 || mips > p.available {
		return false
	}
	p.available -= mips
	p.table[uid] = append(p.table[uid], mips)
	return true
}

// AllocateList replaces the guest's virtual-PE shares with mips.
// On failure the previous shares are kept.
func (p *PeProvisioner) AllocateList(uid string, mips []float64) bool {
	total := 0.0
	for _, m := range mips {
		if m < 0 {
			return false
		}
		total += m
	}
	prev := p.TotalAllocatedMips(uid)
	if total > p.available+prev {
		return false
	}
	p.available += prev
	p.available -= total
	p.table[uid] = append([]float64(nil), mips...)
	return true
}

// IsSuitable reports whether Allocate(uid, mips) would succeed, leaving the
// table and available MIPS unchanged.
func (p *PeProvisioner) IsSuitable(uid string, mips float64) bool {
	prev, had := p.table[uid]
	saved := append([]float64(nil), prev...)
	ok := p.Allocate(uid, mips)
	p.Deallocate(uid)
	if had {
		for _, m := range saved {
			p.available -= m
		}
		p.table[uid] = saved
	}
	return ok
}

// Deallocate releases every share the guest holds on this PE. Idempotent.
func (p *PeProvisioner) Deallocate(uid string) {
	if shares, ok := p.table[uid]; ok {
		for _, m := range shares {
			p.available += m
		}
		delete(p.table, uid)
	}
}

// DeallocateAll releases every share on this PE.
func (p *PeProvisioner) DeallocateAll() {
	p.available = p.capacity
	p.table = make(map[string][]float64)
}

// AllocatedMips returns a copy of the guest's virtual-PE shares.
func (p *PeProvisioner) AllocatedMips(uid string) []float64 {
	return append([]float64(nil), p.table[uid]...)
}

// AllocatedMipsForVirtualPe returns the share of the idx-th virtual PE of the
// guest on this PE, or zero when out of range.
func (p *PeProvisioner) AllocatedMipsForVirtualPe(uid string, idx int) float64 {
	shares := p.table[uid]
	if idx < 0 || idx >= len(shares) {
		return 0
	}
	return shares[idx]
}

// TotalAllocatedMips sums the guest's shares on this PE.
func (p *PeProvisioner) TotalAllocatedMips(uid string) float64 {
	total := 0.0
	for _, m := range p.table[uid] {
		total += m
	}
	return total
}
