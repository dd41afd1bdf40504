/*
Package ports defines the driven ports (interfaces) of the flux engine.

These interfaces decouple the propagation engine from the fact store and from
cross-process coordination, so sessions can run against in-memory or remote
backends.

# Key Interfaces

  - Blackboard: the source-attributed fact store the engine reads and writes.
  - DistributedLocker: distributed locking for concurrent access to a session.
*/
package ports
