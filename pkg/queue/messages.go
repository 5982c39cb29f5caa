package queue

import "time"

// JobTypeFile is the only job type: filter one file.
const JobTypeFile = "file"

// KernelSpec names a kernel preset, resolved by the worker.
type KernelSpec struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type JobMessage struct {
	Type       string     `json:"type"`
	Batch      string     `json:"batch"`
	InputPath  string     `json:"input_path"`
	OutputPath string     `json:"output_path"`
	Kernel     KernelSpec `json:"kernel"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

type ResultMessage struct {
	Batch       string  `json:"batch"`
	InputPath   string  `json:"input_path"`
	OutputPath  string  `json:"output_path"`
	WorkerID    string  `json:"worker_id"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	ProcessTime float64 `json:"process_time"`
	Error       string  `json:"error,omitempty"`
}

// ClaimedJob is a pending job taken over from a worker that stopped acknowledging.
type ClaimedJob struct {
	ID  string
	Job *JobMessage
}
