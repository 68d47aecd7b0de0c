// Package segment implements the speech/idle state machine that partitions
// a scored frame stream into discrete utterances, applying pre-speech
// lookback, silence-timeout debouncing, and a minimum-speech filter.
package segment
