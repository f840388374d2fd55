// Package tokenstore provides durable, permission-restricted persistence for
// authorization tokens.
//
// Two backends with different deployment tradeoffs:
//   - File: one JSON document per path, owner read/write only from the
//     moment of creation, written atomically so a concurrent reader never
//     observes a partial file
//   - Keyring: the same JSON document in OS-native credential storage
//     (macOS Keychain, Windows Credential Manager, Linux Secret Service)
//
// Load degrades to "no token" (nil, nil) when the stored credential is
// absent, unreadable or unusable; only genuine I/O failures on Save and
// Clear surface as errors. Same-path writers race with last-writer-wins
// semantics; stores on distinct paths never interfere.
package tokenstore
