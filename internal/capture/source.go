// Package capture reads microphone audio and feeds raw sample chunks
// into the pipeline.
package capture

// Source produces audio chunks from a capture device. Start launches the
// capture loop in the background and invokes submit for every chunk of
// mono float32 samples read; Stop terminates the loop and releases the
// device.
type Source interface {
	Start(submit func(samples []float32)) error
	Stop() error
}
