// Package streaming protects long-running response writes against slow or
// vanished clients with per-write and idle timeouts.
package streaming
