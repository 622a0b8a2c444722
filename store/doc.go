// Package store defines the storage side of the persistence engine.
//
// An [EntityStore] keeps [Entity] rows keyed by a [PK]. The engine never talks to a database
// directly: it probes, writes, refreshes and removes entities through this interface and
// classifies the failures adapters report.
//
// # Adapters
//
//   - store/memstore: in-memory, for tests and embedded use
//   - store/sqlstore: SQLite and PostgreSQL through database/sql
//   - store/dynamo:   DynamoDB with conditional writes and parent checks
//   - store/cached:   read-through cache in front of any other adapter
//
// # Schemas
//
// A [Schema] names the entity type and declares its [Capabilities]. Use [NewSchema] for plain
// entity types, [NewDependentSchema] for types scoped under a parent and [NewVersionedSchema]
// for types that keep several versions per OID:
//
//	people := store.NewSchema("person")
//	addresses := store.NewDependentSchema("address", "person")
//	tariffs := store.NewVersionedSchema("tariff")
//
// # Writes
//
// [EntityStore.Write] inserts an entity whose Version is 0 and stores it with version 1.
// An entity with Version > 0 is a conditional update: it succeeds only if the stored row
// still has that version, and bumps it by one.
//
// # Errors
//
// Adapters translate driver failures into:
//
//   - [ErrNotFound] - entity doesn't exist or was removed
//   - [ErrVersionMismatch] - conditional write found another version
//   - [*ConstraintViolation] - unique, not-null, foreign key or other integrity violation
//   - [ErrUnknownQuery] - named query not registered
//
// Everything else is an I/O failure and propagates unchanged.
package store
