// Package nebula is the Composition Root for the Nebula document engine.
//
// It connects the core lifecycle logic (pkg/core) with the storage adapters
// (filesystem, in-memory and remote HTTP) using the Hexagonal Architecture pattern.
//
// Documents are versioned and notarized: every commit appends an ed25519 seal,
// every retrieval re-validates the seal chain, and committed documents are
// immutable. Drafts are the only mutable state. Queues are built on the same
// storage and claimed by delete, so concurrent receivers never see the same
// message twice.
//
// Usage:
//
//	svc, err := nebula.New("./vault",
//		nebula.WithKeyFile("./vault/.nebula/notary.key"),
//		nebula.WithLogger(logger),
//	)
//
//	draft := core.Document{Tag: core.NewTag(), Version: core.Version{1}, Content: "hello"}
//	citation, err := svc.CommitDraft(ctx, draft.ID(), draft)
package nebula
