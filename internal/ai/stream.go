package ai

import (
	"io"
	"strings"
)

type streamEvent struct {
	text string
	err  error
}

// Stream is a finite, forward-only sequence of text increments with exactly
// one reader. It cannot be restarted: once Recv has returned io.EOF or an
// error, every later call returns that same error. Retrying means issuing a
// new request.
type Stream struct {
	events <-chan streamEvent
	err    error
}

// NewStream runs produce in its own goroutine. Every emit call becomes one
// increment; the error produce returns (if any) terminates the stream.
func NewStream(produce func(emit func(string)) error) *Stream {
	events := make(chan streamEvent, 16)
	go func() {
		defer close(events)
		err := produce(func(text string) {
			if text != "" {
				events <- streamEvent{text: text}
			}
		})
		if err != nil {
			events <- streamEvent{err: err}
		}
	}()
	return &Stream{events: events}
}

// StreamOf yields the given increments in order.
func StreamOf(increments ...string) *Stream {
	return NewStream(func(emit func(string)) error {
		for _, text := range increments {
			emit(text)
		}
		return nil
	})
}

// Recv returns the next increment, io.EOF when the sequence ended normally,
// or the error that ended it.
func (s *Stream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	ev, ok := <-s.events
	if !ok {
		s.err = io.EOF
		return "", s.err
	}
	if ev.err != nil {
		s.err = ev.err
		// drain so the producer goroutine never blocks
		for range s.events {
		}
		return "", s.err
	}
	return ev.text, nil
}

// Collect drains the stream, calling onText for every increment, and returns
// the concatenated text.
func Collect(s *Stream, onText func(string)) (string, error) {
	var full strings.Builder
	for {
		text, err := s.Recv()
		if err == io.EOF {
			return full.String(), nil
		}
		if err != nil {
			return full.String(), err
		}
		full.WriteString(text)
		if onText != nil {
			onText(text)
		}
	}
}
