// Package tcc implements a Try-Confirm-Cancel (TCC) distributed transaction
// coordinator.
//
// TCC achieves eventual all-or-nothing semantics across independently
// committing services without a two-phase-commit lock: a tentative
// reservation (the try) is followed by either a confirming or a compensating
// action, each of which must be idempotent.
//
// # Overview
//
//  1. Register your compensable resources:
//     - Write confirm and cancel handlers for each resource.
//     - Use NewResource to package them and register them in a
//     ResourceRegistry built at startup.
//  2. Create a TransactionStore:
//     - Use NewMemoryStore for testing, NewFileStore for durable local
//     storage, or implement the TransactionStore interface yourself.
//     - Wrap any backend with NewCachedStore to front it with a bounded
//     expiring cache.
//  3. Create a TransactionManager with the store and registry.
//  4. Wrap transactional entry points with a CompensableInterceptor and
//     resource calls made inside a try with a ResourceCoordinator.
//  5. Run a TransactionRecovery sweep on a schedule (see RecoveryScheduler)
//     so transactions left behind by crashes or timeouts are driven to
//     completion.
//
// A transaction moves TRYING -> CONFIRMING or TRYING -> CANCELLING, and is
// deleted from the store once every participant's confirm or cancel has been
// applied. A confirm or cancel that arrives for a transaction that no longer
// exists is a silent success ("null confirm"/"null cancel"), which is what
// lets independent participants converge after partial failures.
package tcc
