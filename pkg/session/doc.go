/*
Package session keeps the live sessions of an engine.

A Manager creates sessions on demand, each backed by its own fact store, and
serializes multi-step operations on a session. With a distributed locker it
also coordinates replicas sharing a fact store such as Redis.
*/
package session
