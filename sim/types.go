package sim

import "fmt"

// NoEvent is returned by processing updates when nothing is left to run.
// Callers treat it as "no future event needed".
const NoEvent = 0.0

// MinTimeBetweenEvents is the smallest horizon a processing update may report.
// Shorter completion deltas are clamped up to it so the kernel never spins on
// zero-length events.
const MinTimeBetweenEvents = 0.1

// GuestKind distinguishes virtual machines from containers nested inside them.
type GuestKind string

const (
	KindVm        GuestKind = "vm"
	KindContainer GuestKind = "container"
)

// ResourceKind names a provisioned resource.
type ResourceKind string

const (
	ResourceMips    ResourceKind = "mips"
	ResourceRam     ResourceKind = "ram"
	ResourceBw      ResourceKind = "bw"
	ResourceStorage ResourceKind = "storage"
)

// GuestUID returns the identity used as provisioner and scheduler table key.
// Format: "<kind>-<owner>-<id>".
func GuestUID(kind GuestKind, ownerID, id int) string {
	return fmt.Sprintf("%s-%d-%d", kind, ownerID, id)
}
