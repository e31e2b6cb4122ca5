// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides conversation persistence.
//
// Store is the persistence interface consumed by the session registry.
// Two implementations are provided: SQLiteStore, the durable default
// backed by a single-writer SQLite database, and MemoryStore for tests
// and ephemeral use.
//
// The message log is append-only. Writes go through the store; callers
// hold snapshots.
package store
