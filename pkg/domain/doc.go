/*
Package domain contains the shared vocabulary of the flux engine.

It defines the contracts the engine consumes from its collaborators (conditions,
actions, the fact store view) and the types it publishes (errors, trace events).
This package is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - ObjectID: identifies an observable object of the knowledge base.
  - Condition: a boolean guard over the session's current values.
  - Action: a side effect an Action node performs on activation and undoes on deactivation.
  - Source: the author of a fact (the user, a node, or a checkpoint snapshot).
  - Event: a structured trace record emitted while propagating.
*/
package domain
