// Package core contains the canonical fan-out domain contracts, entities, and
// orchestration logic: subscriptions, notifications, the wildcard matcher and
// its keyset pagination. Lower-level adapters (SQL stores, HTTP transport,
// queues) depend on this package; core must not depend on them.
package core
