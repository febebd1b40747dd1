// Package sticker defines the WhatsApp sticker output contract: duration and
// canvas constraints, the supported input types, the fixed FFmpeg encode
// command, and helpers for naming and verifying WebP output.
package sticker
