package sim

// PeStatus is the state of a processing element.
type PeStatus int

const (
	PeFree PeStatus = iota
	PeBusy
	PeFailed
)

func (s PeStatus) String() string {
	switch s {
	case PeFree:
		return "free"
	case PeBusy:
		return "busy"
	case PeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pe is a simulated CPU core with a MIPS rating and its own MIPS provisioner.
type Pe struct {
	ID          int
	Status      PeStatus
	Provisioner *PeProvisioner
}

// NewPe creates a free PE rated at mips.
func NewPe(id int, mips float64) *Pe {
	return &Pe{
		ID:          id,
		Status:      PeFree,
		Provisioner: NewPeProvisioner(mips),
	}
}

// Mips returns the PE's rating, or zero if the PE has failed.
func (p *Pe) Mips() float64 {
	if p.Status == PeFailed {
		return 0
	}
	return p.Provisioner.Capacity()
}

// NewPeList creates n identical PEs numbered from 0.
func NewPeList(n int, mips float64) []*Pe {
	pes := make([]*Pe, n)
	for i := range pes {
		pes[i] = NewPe(i, mips)
	}
	return pes
}

// totalMips sums the ratings of all non-failed PEs.
func totalMips(pes []*Pe) float64 {
	total := 0.0
	for _, pe := range pes {
		total += pe.Mips()
	}
	return total
}

// freePes returns the PEs currently marked free.
func freePes(pes []*Pe) []*Pe {
	var free []*Pe
	for _, pe := range pes {
		if pe.Status == PeFree {
			free = append(free, pe)
		}
	}
	return free
}

// maxPeMips returns the largest rating among non-failed PEs.
func maxPeMips(pes []*Pe) float64 {
	best := 0.0
	for _, pe := range pes {
		if m := pe.Mips(); m > best {
			best = m
		}
	}
	return best
}
