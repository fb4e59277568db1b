package task

import (
	"fmt"

	"Danni-Agent/internal/a2a"
	xerrors "Danni-Agent/internal/errors"
)

const (
	CodeTaskNotFound          xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskNotCancelable     xerrors.Code = "TASK_NOT_CANCELABLE"
	CodeTaskInvalidTransition xerrors.Code = "TASK_INVALID_TRANSITION"
	CodeTaskMutation          xerrors.Code = "TASK_MUTATION"
	CodeTaskProcessing        xerrors.Code = "TASK_PROCESSING_FAILED"
)

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskNotCancelable 表示任务已处于终态。
	ErrTaskNotCancelable = xerrors.New(CodeTaskNotCancelable, "task not cancelable")
	// ErrInvalidTransition 表示状态迁移不在迁移表中。
	ErrInvalidTransition = xerrors.New(CodeTaskInvalidTransition, "invalid state transition")
	// ErrTaskMutation 表示任务处于不可追加产出物的终态。
	ErrTaskMutation = xerrors.New(CodeTaskMutation, "task mutation rejected")
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
		RPCCode:  a2a.RPCTaskNotFound,
	})
	xerrors.Register(CodeTaskNotCancelable, xerrors.Attributes{
		Message:  "task not cancelable",
		Severity: xerrors.SeverityInfo,
		RPCCode:  a2a.RPCTaskNotCancelable,
	})
	xerrors.Register(CodeTaskInvalidTransition, xerrors.Attributes{
		Message:  "invalid state transition",
		Severity: xerrors.SeverityWarning,
		RPCCode:  xerrors.RPCInvalidParams,
	})
	xerrors.Register(CodeTaskMutation, xerrors.Attributes{
		Message:  "task mutation rejected",
		Severity: xerrors.SeverityWarning,
		RPCCode:  xerrors.RPCInvalidParams,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:   "task execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		RPCCode:   xerrors.RPCInternalError,
	})
}

func notFound(id string) error {
	return xerrors.New(CodeTaskNotFound, "Task not found: "+id,
		xerrors.WithMetadata("task_id", id))
}

func notCancelable(id string, state a2a.TaskState) error {
	return xerrors.New(CodeTaskNotCancelable, fmt.Sprintf("Task %s is in terminal state: %s", id, state),
		xerrors.WithMetadata("task_id", id),
		xerrors.WithMetadata("state", string(state)))
}

func invalidTransition(id string, from, to a2a.TaskState) error {
	return xerrors.New(CodeTaskInvalidTransition, fmt.Sprintf("Task %s: invalid transition from '%s' to '%s'", id, from, to),
		xerrors.WithMetadata("task_id", id),
		xerrors.WithMetadata("from", string(from)),
		xerrors.WithMetadata("to", string(to)))
}

func mutationRejected(id string, state a2a.TaskState, operation string) error {
	return xerrors.New(CodeTaskMutation, fmt.Sprintf("Task %s: cannot %s in terminal state '%s'", id, operation, state),
		xerrors.WithMetadata("task_id", id),
		xerrors.WithMetadata("state", string(state)))
}
