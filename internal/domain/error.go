package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Audio and recognition
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrDecode            = errors.New("audio decode failed")
	ErrTranscription     = errors.New("transcription failed")

	// Turn stages
	ErrClassification = errors.New("emotion classification failed")
	ErrSearch         = errors.New("content search failed")
	ErrChatCompletion = errors.New("chat completion failed")
	ErrSynthesis      = errors.New("speech synthesis failed")
	ErrTurnFailed     = errors.New("turn failed")

	// Plumbing
	ErrSink        = errors.New("telemetry sink failed")
	ErrRateLimited = errors.New("rate limited")
	ErrUnknownType = errors.New("unknown suggestion type")
)
