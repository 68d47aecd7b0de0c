// Package transcription wraps the OpenAI speech-to-text API behind a small
// client with request statistics and failure classification.
package transcription
