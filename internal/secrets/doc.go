// Package secrets stores small string values such as saved repository
// credentials.
//
// Two implementations are provided: MemoryStore for tests and short-lived
// sessions, and FileStore, which keeps every value in a single file
// encrypted with AES-GCM under an argon2id-derived key.
package secrets
