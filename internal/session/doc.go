// Package session is the client for the shared key/value store holding
// server-side session records. Records are Redis hashes under
// "session:<id>" and expire through the store's TTL.
package session
