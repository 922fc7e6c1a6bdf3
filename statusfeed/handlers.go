package statusfeed

import (
	"fmt"

	"go.uber.org/zap"
)

// MessageHandlers defines optional callback functions for the message types of
// the feed. All handlers are optional - only provide handlers for the messages
// you care about.
type MessageHandlers struct {
	// OnStatus is called when the add-on state changes
	OnStatus func(*DataStatus)

	// OnStarted is called when a job begins
	OnStarted func(jobID string, msg *DataStarted)

	// OnProgress is called with progress updates during a job
	OnProgress func(jobID string, msg *DataProgress)

	// OnError is called if the job failed
	// This is called before OnStopped when an error occurs
	OnError func(jobID string, msg *DataStopped)

	// OnStopped is called when a job ends (success or error)
	OnStopped func(jobID string, msg *DataStopped)
}

// JobError is the failure carried by a stopped message.
type JobError struct {
	JobID   string
	Kind    string
	Message string
}

func (e *JobError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
	}
	return fmt.Sprintf("job %s failed: %s (%s)", e.JobID, e.Message, e.Kind)
}

// DefaultMessageHandlers returns MessageHandlers that log started, stopped
// and failed jobs to logger. Progress is not logged.
func DefaultMessageHandlers(logger *zap.Logger) *MessageHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageHandlers{
		OnStatus: func(msg *DataStatus) {
			logger.Info("environment status", zap.String("environment", msg.Environment))
		},
		OnStarted: func(jobID string, msg *DataStarted) {
			logger.Info("job started", zap.String("job_id", jobID), zap.String("name", msg.Name), zap.String("operation", msg.Operation))
		},
		OnError: func(jobID string, msg *DataStopped) {
			logger.Error("job failed",
				zap.String("job_id", jobID),
				zap.String("error", msg.Error),
				zap.String("error_kind", msg.ErrorKind),
			)
		},
		OnStopped: func(jobID string, msg *DataStopped) {
			if msg.Error == "" {
				logger.Info("job finished", zap.String("job_id", jobID), zap.String("material", msg.Material))
			}
		},
	}
}

// WithStatusHandler sets the status handler (builder pattern)
func (h *MessageHandlers) WithStatusHandler(fn func(*DataStatus)) *MessageHandlers {
	h.OnStatus = fn
	return h
}

// WithStartedHandler sets the started handler (builder pattern)
func (h *MessageHandlers) WithStartedHandler(fn func(string, *DataStarted)) *MessageHandlers {
	h.OnStarted = fn
	return h
}

// WithProgressHandler sets the progress handler (builder pattern)
func (h *MessageHandlers) WithProgressHandler(fn func(string, *DataProgress)) *MessageHandlers {
	h.OnProgress = fn
	return h
}

// WithErrorHandler sets the error handler (builder pattern)
func (h *MessageHandlers) WithErrorHandler(fn func(string, *DataStopped)) *MessageHandlers {
	h.OnError = fn
	return h
}

// WithStoppedHandler sets the stopped handler (builder pattern)
func (h *MessageHandlers) WithStoppedHandler(fn func(string, *DataStopped)) *MessageHandlers {
	h.OnStopped = fn
	return h
}

// Dispatch hands msg to the matching handler. For a stopped message that
// carries an error, the error is returned as a *JobError.
func (h *MessageHandlers) Dispatch(msg *Message) error {
	switch data := msg.Data.(type) {
	case *DataStatus:
		if h.OnStatus != nil {
			h.OnStatus(data)
		}
	case *DataStarted:
		if h.OnStarted != nil {
			h.OnStarted(msg.JobID, data)
		}
	case *DataProgress:
		if h.OnProgress != nil {
			h.OnProgress(msg.JobID, data)
		}
	case *DataStopped:
		var jobErr error
		if data.Error != "" {
			if h.OnError != nil {
				h.OnError(msg.JobID, data)
			}
			jobErr = &JobError{JobID: msg.JobID, Kind: data.ErrorKind, Message: data.Error}
		}
		if h.OnStopped != nil {
			h.OnStopped(msg.JobID, data)
		}
		return jobErr
	}
	return nil
}
