// Package vad scores fixed-size audio frames for speech presence. It ships
// a Silero ONNX scorer for production use and a pure-Go RMS energy scorer
// for running without a model.
package vad
