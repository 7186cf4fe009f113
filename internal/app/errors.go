package app

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrFileParse       = errors.New("file could not be parsed as csv")
	ErrIndexBuild      = errors.New("index build failed")
	ErrEngineNotReady  = errors.New("no file is loaded")
	ErrQuestionEmpty   = errors.New("question is empty")
	ErrSessionNotFound = errors.New("session not found")
)
