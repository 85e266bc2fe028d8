package model

// Judge engine status ids.
const (
	StatusInQueue           = 1
	StatusProcessing        = 2
	StatusAccepted          = 3
	StatusWrongAnswer       = 4
	StatusTimeLimitExceeded = 5
	StatusCompilationError  = 6
	StatusRuntimeSIGSEGV    = 7
	StatusRuntimeSIGXFSZ    = 8
	StatusRuntimeSIGFPE     = 9
	StatusRuntimeSIGABRT    = 10
	StatusRuntimeNZEC       = 11
	StatusRuntimeOther      = 12
	StatusInternalError     = 13
	StatusExecFormatError   = 14
)

var pendingStatuses = map[int]struct{}{
	StatusInQueue:    {},
	StatusProcessing: {},
}

// IsPending reports whether the judge is still working on a submission.
// Every other id, including unknown ones, is terminal.
func IsPending(statusID int) bool {
	_, ok := pendingStatuses[statusID]
	return ok
}
