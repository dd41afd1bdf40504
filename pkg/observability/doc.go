/*
Package observability turns the engine's trace events into logs and metrics.

Every type here implements domain.EventSink. Combine them with Multi and pass
the result to the engine's WithEventSink option.
*/
package observability
