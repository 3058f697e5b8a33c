package types

type StatusType int32

const (
	None      StatusType = 0
	Pending   StatusType = 1
	Running   StatusType = 2
	Completed StatusType = 3
	Failed    StatusType = 5
)

func (s StatusType) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "none"
}

// TriggerType says what started (or re-entered) a run.
type TriggerType string

const (
	TriggerChat        TriggerType = "chat"
	TriggerAPI         TriggerType = "api"
	TriggerSchedule    TriggerType = "schedule"
	TriggerWaitMessage TriggerType = "wait_message"
	// TriggerParamCall is an assistant-internal parameter call; its failures
	// are never echoed back as error messages.
	TriggerParamCall TriggerType = "param_call"
	// TriggerLoopReentry marks a loop body iteration driven by an outer run.
	TriggerLoopReentry TriggerType = "loop_reentry"
)

type ExecutionType string

const (
	ExecutionTypeIM    ExecutionType = "im"
	ExecutionTypeAPI   ExecutionType = "api"
	ExecutionTypeDebug ExecutionType = "debug"
)

type FlowStreamStatus int32

const (
	StreamNotStarted FlowStreamStatus = 0
	StreamProcessing FlowStreamStatus = 1
	StreamFinished   FlowStreamStatus = 2
)

// StreamEndSentinel is written to API streams right before they are closed.
const StreamEndSentinel = "[DONE]"
