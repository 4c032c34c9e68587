package pipeline

import "time"

// Status is the terminal result of one pipeline run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Outcome describes how a run ended. Err is set only for StatusFailed;
// OutputPath and OutputSize only for StatusCompleted.
type Outcome struct {
	Status     Status
	OutputPath string
	OutputSize int64
	Err        *Error
	Elapsed    time.Duration
}

func completed(path string, size int64) Outcome {
	return Outcome{Status: StatusCompleted, OutputPath: path, OutputSize: size}
}

func failed(err *Error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

func cancelled() Outcome {
	return Outcome{Status: StatusCancelled}
}
