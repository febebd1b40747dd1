// Package convert coordinates sticker conversion jobs: it checks the result
// cache before transcoding, deduplicates concurrent requests for the same
// source file, bounds engine concurrency, reports monotonic progress, and
// supports cooperative cancellation, retry, and reset.
package convert
