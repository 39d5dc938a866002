package types

// ProgressEvent is one chunk of a long-running batch operation's output.
// Transport adapters (SSE handler, judgectl) consume these off a channel so
// the orchestrator stays unaware of how progress reaches the operator.
type ProgressEvent struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

// EmitProgress sends an event without blocking callers that passed no channel.
func EmitProgress(ch chan<- ProgressEvent, message string, isError bool) {
	if ch == nil {
		return
	}
	ch <- ProgressEvent{Message: message, Error: isError}
}

// RejudgeAction finalizes a rejudging batch one way or the other.
type RejudgeAction string

const (
	ActionApply  RejudgeAction = "apply"
	ActionCancel RejudgeAction = "cancel"
)

type UnixMilli int64
