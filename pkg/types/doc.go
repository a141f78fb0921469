// Package types defines the Repository interfaces, the entity and link
// types, and the standard errors for the carsync engine.
//
// A Repository exposes one named collection of EntityRecords per workflow
// location (a Store) plus four cross-cutting collections: sync links, the
// sync log, client-car links and the integrity log. Backends in
// internal/sqlite and internal/memstore implement it; the registry, sync
// engine, linking index and audit log consume it.
package types
