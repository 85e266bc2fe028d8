package reconciler

import "codejudge/internal/judge/model"

// outcome is how a terminal status is reported.
type outcome int

const (
	outcomeCompare outcome = iota // accepted by the engine, outputs are compared locally
	outcomeCompilationError
	outcomeRuntimeError
	outcomeTimeLimit
	outcomeWrongAnswer
)

var outcomes = map[int]outcome{
	model.StatusAccepted:          outcomeCompare,
	model.StatusWrongAnswer:       outcomeWrongAnswer,
	model.StatusTimeLimitExceeded: outcomeTimeLimit,
	model.StatusCompilationError:  outcomeCompilationError,
	model.StatusRuntimeSIGSEGV:    outcomeRuntimeError,
	model.StatusRuntimeSIGXFSZ:    outcomeRuntimeError,
	model.StatusRuntimeSIGFPE:     outcomeRuntimeError,
	model.StatusRuntimeSIGABRT:    outcomeRuntimeError,
	model.StatusRuntimeNZEC:       outcomeRuntimeError,
	model.StatusRuntimeOther:      outcomeRuntimeError,
}

var outcomeMessages = map[outcome]string{
	outcomeCompilationError: MessageCompilationError,
	outcomeRuntimeError:     MessageRuntimeError,
	outcomeTimeLimit:        MessageTimeLimitExceeded,
	outcomeWrongAnswer:      MessageWrongAnswer,
}

var labels = map[int]string{
	model.StatusInQueue:           "In Queue",
	model.StatusProcessing:        "Processing",
	model.StatusAccepted:          "Accepted",
	model.StatusWrongAnswer:       "Wrong Answer",
	model.StatusTimeLimitExceeded: "Time Limit Exceeded",
	model.StatusCompilationError:  "Compilation Error",
	model.StatusRuntimeSIGSEGV:    "Runtime Error (SIGSEGV)",
	model.StatusRuntimeSIGXFSZ:    "Runtime Error (SIGXFSZ)",
	model.StatusRuntimeSIGFPE:     "Runtime Error (SIGFPE)",
	model.StatusRuntimeSIGABRT:    "Runtime Error (SIGABRT)",
	model.StatusRuntimeNZEC:       "Runtime Error (NZEC)",
	model.StatusRuntimeOther:      "Runtime Error (Other)",
	model.StatusInternalError:     "Internal Error",
	model.StatusExecFormatError:   "Exec Format Error",
}

// Label returns a readable name for a judge status id.
func Label(statusID int) string {
	if l, ok := labels[statusID]; ok {
		return l
	}
	return "Unknown"
}
