// Package media wraps ffmpeg and ffprobe for audio extraction, validation,
// duration probing, and fixed-length chunking.
package media
