// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages live chat sessions.
//
// The Registry keeps one Session per open conversation. Viewers attach
// through Open, which returns a Handle delivering ordered Snapshot
// updates; Sessions are reference counted, and the last Close arms a
// grace timer so a quick reopen reattaches to live state instead of
// rebuilding it. When the timer fires the session is torn down: any
// in-flight generation is cancelled, partial output is persisted as
// resumable, and the session leaves the registry.
//
// Each session runs at most one generation at a time. A generation
// streams provider events into the session's partial buffers, retries
// transient failures (discarding the failed attempt's partial output),
// and runs requested tool calls before handing the results back to the
// model for the next turn. StopGeneration persists whatever streamed so
// far with a stop marker so the user keeps what they saw.
package session
