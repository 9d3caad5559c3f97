// Package process contains the pipeline stage handlers that take a queued
// recording from raw video to a saved meeting note: validate, convert,
// transcribe, analyze, entities, and save. Each handler implements
// stage.Handler and communicates with the next stage through the queue item's
// path fields and metadata JSON.
package process
