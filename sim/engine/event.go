// Package engine is a minimal discrete-event kernel: a clock, a timestamped
// event queue, and a registry of entities that exchange tagged messages.
// Events at the same timestamp are delivered in the order they were
// scheduled.
package engine

import "fmt"

// Tag names the kind of message an event carries.
type Tag int

const (
	TagGuestCreate Tag = iota + 1
	TagGuestCreateAck
	TagGuestDestroy
	TagGuestMigrate
	TagMigrationComplete
	TagUpdateProcessing
	TagWorkloadSubmit
	TagWorkloadReturn
	TagAuctionOpen
	TagAuctionBid
	TagBidAck
	TagAuctionClose
	TagAllocationPublication
	TagHostFailure
	TagEndOfSimulation
)

var tagNames = map[Tag]string{
	TagGuestCreate:           "GuestCreate",
	TagGuestCreateAck:        "GuestCreateAck",
	TagGuestDestroy:          "GuestDestroy",
	TagGuestMigrate:          "GuestMigrate",
	TagMigrationComplete:     "MigrationComplete",
	TagUpdateProcessing:      "UpdateProcessing",
	TagWorkloadSubmit:        "WorkloadSubmit",
	TagWorkloadReturn:        "WorkloadReturn",
	TagAuctionOpen:           "AuctionOpen",
	TagAuctionBid:            "AuctionBid",
	TagBidAck:                "BidAck",
	TagAuctionClose:          "AuctionClose",
	TagAllocationPublication: "AllocationPublication",
	TagHostFailure:           "HostFailure",
	TagEndOfSimulation:       "EndOfSimulation",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tag(%d)", int(t))
}

// Event is one message delivered to Target at Time.
type Event struct {
	Time    float64
	Seq     uint64
	Source  int
	Target  int
	Tag     Tag
	Payload any
}

func (e *Event) String() string {
	return fmt.Sprintf("%.2f #%d %s %d->%d", e.Time, e.Seq, e.Tag, e.Source, e.Target)
}
