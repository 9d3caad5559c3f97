// Package whisper is the OpenAI-compatible speech-to-text client, including
// chunked transcription for recordings over the upload limit.
package whisper
