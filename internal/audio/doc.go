// Package audio provides sample-level building blocks for the dictation
// pipeline: alignment of variable-sized capture chunks into fixed analysis
// frames, the pre-speech ring buffer, and WAV encoding for persisted segments.
package audio
