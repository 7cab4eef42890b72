package services

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/zamasskin/datashift/pkg/types"
)

const (
	eventComplete = "complete"
	eventFail     = "fail"
	eventCancel   = "cancel"
)

// runFinisher 종료 상태 기록
type runFinisher interface {
	FinishRun(ctx context.Context, runID int64, status types.RunStatus, message string) error
}

// runState running → success | failed | canceled 전이만 허용
// 종료 상태에 들어갈 때 저장소에 기록하므로 run 하나는 한 번만 종료됨
type runState struct {
	machine *fsm.FSM
}

func newRunState(runID int64, store runFinisher) *runState {
	running := string(types.RunStatusRunning)
	return &runState{
		machine: fsm.NewFSM(running, fsm.Events{
			{Name: eventComplete, Src: []string{running}, Dst: string(types.RunStatusSuccess)},
			{Name: eventFail, Src: []string{running}, Dst: string(types.RunStatusFailed)},
			{Name: eventCancel, Src: []string{running}, Dst: string(types.RunStatusCanceled)},
		}, fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				var message string
				if len(e.Args) > 0 {
					message, _ = e.Args[0].(string)
				}
				if err := store.FinishRun(ctx, runID, types.RunStatus(e.Dst), message); err != nil {
					e.Err = err
				}
			},
		}),
	}
}

// to 종료 상태로 전이하며 기록, 이미 종료됐거나 기록에 실패하면 오류
func (s *runState) to(ctx context.Context, status types.RunStatus, message string) error {
	var event string
	switch status {
	case types.RunStatusSuccess:
		event = eventComplete
	case types.RunStatusFailed:
		event = eventFail
	case types.RunStatusCanceled:
		event = eventCancel
	default:
		return fsm.UnknownEventError{Event: string(status)}
	}
	return s.machine.Event(ctx, event, message)
}
