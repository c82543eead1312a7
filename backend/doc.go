// Package backend implements the Processing Backend: the client-facing
// submit/await interface consumed by the course model.
//
// Submit resolves a conversion request against the two cache tiers
// before ever touching the Queue Service, and AwaitAll detects
// completion purely by polling — there is no push channel from a Worker
// Runtime back to the client, since the two communicate only through
// the Durable Store.
package backend
