// Package job defines the stateful representation of a conversion request
// as tracked by the Durable Store.
//
// A Job embeds task.Request and augments it with delivery and scheduling
// metadata: identity, status, the claiming Worker's id, an error record
// on failure, and timestamps. Unlike task.Request, Job fields are
// maintained by the Queue Service and worker logic, not by the caller.
//
// Job values returned by Queue methods are snapshots of authoritative
// storage state at the moment of the call. Mutating a returned Job does
// not change the underlying row; transitions happen only through Queue
// operations (ClaimNext, Complete, CancelForInput, ...).
package job
