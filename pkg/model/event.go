package model

// ProgressEvent is the unit published on the progress bus. Non-terminal
// events may be coalesced under backpressure; events with Terminal set are
// delivered at least once to every subscriber.
type ProgressEvent struct {
	JobID          string     `json:"job_id"`
	PresetID       string     `json:"preset_id"`
	File           string     `json:"file,omitempty"`
	BytesDone      int64      `json:"bytes_done"`
	BytesTotal     int64      `json:"bytes_total"`
	Percent        float64    `json:"percent"`
	SpeedBps       float64    `json:"speed_bps"`
	ETASeconds     float64    `json:"eta_seconds"`
	OverallPercent float64    `json:"overall_percent"`
	Status         JobStatus  `json:"status"`
	FileStatus     FileStatus `json:"file_status,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Terminal       bool       `json:"terminal"`
}

// Key identifies the coalescing slot for the event: one slot per file per
// job, plus one job-level slot for events without a file.
func (e ProgressEvent) Key() string {
	return e.JobID + "/" + e.File
}
