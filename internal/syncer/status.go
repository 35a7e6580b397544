package syncer

import "math"

// Phase is the lifecycle state of a sync session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePreparing Phase = "preparing"
	PhaseCopying   Phase = "copying"
	PhaseVerifying Phase = "verifying"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

// Skip reasons.
const (
	ReasonFileExists           = "file_exists"
	ReasonUnsupportedSystem    = "unsupported_system"
	ReasonUnsupportedFormat    = "unsupported_format"
	ReasonMissingSystemMapping = "missing_system_mapping"
)

// FileOutcome is the terminal disposition of one skipped or failed candidate.
type FileOutcome struct {
	RecordID int64  `json:"record_id"`
	File     string `json:"file"`
	Reason   string `json:"reason"`
}

// Status is pushed to subscribers after every phase change and every file.
type Status struct {
	SessionID       string        `json:"session_id"`
	Phase           Phase         `json:"phase"`
	CurrentFile     string        `json:"current_file,omitempty"`
	TotalFiles      int           `json:"total_files"`
	FilesProcessed  int           `json:"files_processed"`
	FilesCopied     int           `json:"files_copied"`
	ProgressPercent int           `json:"progress_percent"`
	FilesSkipped    []FileOutcome `json:"files_skipped"`
	FilesFailed     []FileOutcome `json:"files_failed"`
	// Candidates is the size of the candidate set; it only differs from
	// TotalFiles when the session was cancelled.
	Candidates int  `json:"candidates"`
	Cancelled  bool `json:"cancelled"`
}

func (s Status) clone() Status {
	s.FilesSkipped = append([]FileOutcome(nil), s.FilesSkipped...)
	s.FilesFailed = append([]FileOutcome(nil), s.FilesFailed...)
	if s.FilesSkipped == nil {
		s.FilesSkipped = []FileOutcome{}
	}
	if s.FilesFailed == nil {
		s.FilesFailed = []FileOutcome{}
	}
	return s
}

func percent(processed, total int) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}
