/*
Package lock serializes work on named keys.

A Manager hands out one in-process mutex per key, garbage collected by reference
counting, and optionally takes a distributed lock for the same key so several
replicas sharing a store observe the same critical sections. Fact ingestion uses it
to close the window between the duplicate check and the store write.
*/
package lock
