// Package transcoder drives FFmpeg and ffprobe for sticker encoding.
//
// The Engine exposes a narrow contract to the conversion controller:
//   - Load: idempotent binary verification plus a scratch session
//   - Session.WriteInput / Probe / Run / ReadOutput / DeleteFile / Close
//
// Run reports progress by parsing ffmpeg's machine-readable progress stream
// and scaling elapsed output time against the clip duration. Cancellation is
// cooperative through the context, which kills the ffmpeg process.
//
// FFmpeg and ffprobe must be installed and available in PATH.
package transcoder
