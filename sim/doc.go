// Package sim provides the resource model of the datacenter simulator:
// hosts, guests, workloads and the schedulers and provisioners that divide
// capacity among them.
//
// # Reading Guide
//
// Start with these files to understand the model:
//   - host.go: a physical machine, or a Vm hosting containers, and how it charges guests
//   - guest.go: Vms and containers, their requested MIPS and utilization history
//   - workload_scheduler.go: how a guest advances its workloads between ticks
//
// # Architecture
//
// The sim package holds the shared types; behavior lives in sub-packages:
//   - sim/engine/: discrete-event kernel, entities and event tags
//   - sim/datacenter/: datacenter, broker and market entities, the orchestrator, scenario loading
//   - sim/placement/: initial placement policies
//   - sim/detection/: overload and underload detectors
//   - sim/selection/: guest-to-migrate and destination policies
//   - sim/policy/: the policy contract and fallback chains
//   - sim/migration/: migration plans and in-flight tracking
//   - sim/auction/: sealed-bid auction for Vm capacity
//   - sim/workload/: utilization models and workload generation
//   - sim/stats/: robust statistics and regressions used by detectors
//   - sim/trace/: decision trace recording
//
// # Key Interfaces
//
//   - GuestScheduler: divide a host's PEs among its guests (time-shared, space-shared)
//   - WorkloadScheduler: run a guest's workloads on the MIPS it was granted
//   - UtilizationModel: a workload's demand for CPU, RAM or bandwidth over time
package sim
