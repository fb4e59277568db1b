package a2a

// TaskState 表示任务生命周期中的状态。
type TaskState string

const (
	StateSubmitted     TaskState = "submitted"
	StateWorking       TaskState = "working"
	StateInputRequired TaskState = "input-required"
	StateAuthRequired  TaskState = "auth-required"
	StateCompleted     TaskState = "completed"
	StateFailed        TaskState = "failed"
	StateCanceled      TaskState = "canceled"
	StateRejected      TaskState = "rejected"
)

// transitions 是唯一合法的状态迁移表，终态没有出边。
var transitions = map[TaskState][]TaskState{
	StateSubmitted:     {StateWorking, StateCanceled, StateRejected},
	StateWorking:       {StateCompleted, StateFailed, StateCanceled, StateInputRequired},
	StateInputRequired: {StateWorking, StateCanceled},
	StateAuthRequired:  {StateWorking, StateCanceled, StateRejected},
	StateCompleted:     {},
	StateFailed:        {},
	StateCanceled:      {},
	StateRejected:      {},
}

// AllStates 按协议顺序列出全部状态。
func AllStates() []TaskState {
	return []TaskState{
		StateSubmitted, StateWorking, StateInputRequired, StateAuthRequired,
		StateCompleted, StateFailed, StateCanceled, StateRejected,
	}
}

// IsValid 判断状态值是否属于协议定义。
func (s TaskState) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal 判断状态是否为终态。
func (s TaskState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled, StateRejected:
		return true
	default:
		return false
	}
}

// Transitions 返回从 from 出发允许到达的状态副本。
func Transitions(from TaskState) []TaskState {
	next := transitions[from]
	out := make([]TaskState, len(next))
	copy(out, next)
	return out
}

// CanTransition 判断 from -> to 是否为迁移表中的一条边。
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
