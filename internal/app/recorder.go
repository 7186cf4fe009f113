package app

import (
	"context"
	"errors"

	"loganalyzer/internal/model"
)

var ErrMessageEnqueue = errors.New("message enqueue failed")

// Recorder receives every appended transcript entry and every finished build,
// and forgets a session's persisted transcript when it is reset. Failures are
// logged by the caller and never affect the session.
type Recorder interface {
	RecordMessage(ctx context.Context, msg model.Message) error
	RecordBuild(ctx context.Context, build model.IndexBuild) error
	ForgetSession(ctx context.Context, sessionID string) error
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type MessageStore interface {
	Create(message *model.Message) error
	DeleteBySessionID(sessionID string) error
}

type BuildStore interface {
	Create(build *model.IndexBuild) error
}

// TranscriptRecorder publishes messages to the queue when one is configured
// and otherwise writes them straight to the store. Any of its parts may be nil.
type TranscriptRecorder struct {
	publisher AsyncMessagePublisher
	messages  MessageStore
	builds    BuildStore
}

func NewTranscriptRecorder(publisher AsyncMessagePublisher, messages MessageStore, builds BuildStore) *TranscriptRecorder {
	return &TranscriptRecorder{
		publisher: publisher,
		messages:  messages,
		builds:    builds,
	}
}

func (r *TranscriptRecorder) RecordMessage(ctx context.Context, msg model.Message) error {
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, msg); err != nil {
			return errors.Join(ErrMessageEnqueue, err)
		}
		return nil
	}
	if r.messages != nil {
		return r.messages.Create(&msg)
	}
	return nil
}

// ForgetSession deletes what the store holds for sessionID. Messages still in
// the queue are persisted after it runs.
func (r *TranscriptRecorder) ForgetSession(ctx context.Context, sessionID string) error {
	if r.messages == nil {
		return nil
	}
	return r.messages.DeleteBySessionID(sessionID)
}

func (r *TranscriptRecorder) RecordBuild(ctx context.Context, build model.IndexBuild) error {
	if r.builds == nil {
		return nil
	}
	return r.builds.Create(&build)
}
