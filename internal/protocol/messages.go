package protocol

import "time"

// TranscribeRequest asks a worker to transcribe a WAV file on shared storage.
// Audio bytes never travel over the bus, only the path.
type TranscribeRequest struct {
	ID        string `json:"id"`
	ModelID   string `json:"model_id"`
	WAVPath   string `json:"wav_path"`
	ChunkSize int    `json:"chunk_size,omitempty"`
}

// Transcript reports the outcome of one request.
type Transcript struct {
	ID         string    `json:"id"`
	ModelID    string    `json:"model_id"`
	Text       string    `json:"text"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Announce advertises a worker and the models it can serve.
type Announce struct {
	WorkerID  string    `json:"worker_id"`
	Models    []string  `json:"models"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat keeps a worker marked healthy.
type Heartbeat struct {
	WorkerID  string    `json:"worker_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscribeRequest     = "transcribe.request"
	SubjectTranscribeResult      = "transcribe.result"
	SubjectWorkerAnnounce        = "ctrl.worker.announce"
	SubjectWorkerHeartbeatPrefix = "ctrl.worker.heartbeat"
)
