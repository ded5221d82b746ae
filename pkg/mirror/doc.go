// Package mirror bridges committed blackboard values onto Redis Pub/Sub so
// that observers without access to the shared-memory segment (dashboards,
// remote tooling) can follow a service's entries.
//
// The mirror is a plain consumer of the public reader API: it polls entry
// handles with IsUpToDate, reads a snapshot only when the version moved and
// republishes it as JSON. It is strictly layered on top of the core — the
// store itself never touches the network, and a slow or absent Redis never
// slows the writer down.
//
// Channel naming follows the drey:{service}:... pattern:
//
//	drey:{service}:updates            all entry updates of one service
//	drey:{service}:entry:{entry_id}   updates of a single entry
//
// Delivery is Redis Pub/Sub at-most-once: subscribers that fall behind miss
// intermediate versions, which matches blackboard semantics — only the
// latest value matters.
package mirror
