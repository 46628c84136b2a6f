package datacenter

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/dcsim/dcsim/sim"
	"github.com/dcsim/dcsim/sim/auction"
)

// FitCount is how many more copies of template h can hold, bounded by every
// resource. A host with fewer or slower PEs than the template needs holds
// none.
func FitCount(h *sim.Host, template *sim.Guest) int {
	if h.IsFailed() || template.NumPes > h.NumPes() || template.Mips > h.Scheduler().PeCapacity() {
		return 0
	}
	n := math.MaxInt
	bound := func(available, need float64) {
		if need <= 0 {
			return
		}
		n = min(n, int(math.Floor(available/need)))
	}
	bound(h.AvailableMips(), template.TotalMips())
	bound(float64(h.RamProvisioner().Available()), float64(template.Ram))
	bound(float64(h.BwProvisioner().Available()), float64(template.Bw))
	bound(float64(h.StorageProvisioner().Available()), float64(template.Size))
	if n == math.MaxInt {
		return 0
	}
	return max(n, 0)
}

// Offer builds the datacenter's ask for one round: for every template it
// can host, the number of copies that fit and a unit price equal to the
// lowest host score among hosts with room. Nil when nothing fits.
func Offer(hosts []*sim.Host, templates []*sim.Guest) *auction.Bid {
	bid := &auction.Bid{Score: math.Inf(1)}
	for _, t := range templates {
		quantity := 0
		best := math.Inf(1)
		for _, h := range hosts {
			n := FitCount(h, t)
			if n == 0 {
				continue
			}
			quantity += n
			best = math.Min(best, auction.HostScore(h))
		}
		if quantity == 0 {
			continue
		}
		bid.Items = append(bid.Items, auction.Item{
			Key:      t.UID(),
			Quantity: quantity,
			Price:    decimal.NewFromFloat(best).Round(6),
		})
		bid.Score = math.Min(bid.Score, best)
	}
	if len(bid.Items) == 0 {
		return nil
	}
	return bid
}
