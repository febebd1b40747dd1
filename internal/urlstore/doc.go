// Package urlstore publishes conversion results under ephemeral, revocable
// download tokens.
package urlstore
