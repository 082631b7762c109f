// Package inbound is the ingress side of the fan-out: producers hand
// notifications to a Queue and return immediately while a worker pool
// dispatches them.
package inbound
