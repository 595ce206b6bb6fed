package constants

// RunStatus is the terminal state of one pipeline run for a file.
type RunStatus string

// Stable values (stored as-is in the journal).
const (
	RunStatusNotReady    RunStatus = "NOT_READY"   // readiness gate gave up, file left in place
	RunStatusOCRFailed   RunStatus = "OCR_FAILED"  // engine returned non-zero
	RunStatusClassified  RunStatus = "CLASSIFIED"  // codes found, renamed into final dir
	RunStatusUnmatched   RunStatus = "UNMATCHED"   // no codes, moved under original name
	RunStatusQuarantined RunStatus = "QUARANTINED" // moved to the error dir
)

// AllRunStatuses lists the statuses in the order reports present them.
var AllRunStatuses = []RunStatus{
	RunStatusClassified,
	RunStatusUnmatched,
	RunStatusQuarantined,
	RunStatusOCRFailed,
	RunStatusNotReady,
}

// IsFailure reports whether the status means the document needs attention.
func (s RunStatus) IsFailure() bool {
	switch s {
	case RunStatusNotReady, RunStatusOCRFailed, RunStatusQuarantined:
		return true
	}
	return false
}
