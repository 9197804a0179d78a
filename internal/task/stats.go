package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunState 队列运行状态
type RunState int

const (
	RunStateActive RunState = iota
	RunStatePaused
	RunStateDraining
	RunStateStopped
)

func (s RunState) String() string {
	switch s {
	case RunStateActive:
		return "active"
	case RunStatePaused:
		return "paused"
	case RunStateDraining:
		return "draining"
	case RunStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalJSON 运行状态以字符串形式序列化
func (s RunState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *RunState) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw {
	case "active":
		*s = RunStateActive
	case "paused":
		*s = RunStatePaused
	case "draining":
		*s = RunStateDraining
	case "stopped":
		*s = RunStateStopped
	default:
		return fmt.Errorf("unknown run state: %q", raw)
	}
	return nil
}

// QueueStats 队列统计快照，由 Queue 派生、StatusHub 周期广播
type QueueStats struct {
	State         RunState `json:"state"`
	Workers       int      `json:"workers"`
	ActiveWorkers int      `json:"active_workers"`
	// Queued 各优先级通道排队总数；LaneDepths 按 urgent/high/normal/low 细分
	Queued     int            `json:"queued"`
	LaneDepths map[string]int `json:"lane_depths"`
	Processing int            `json:"processing"`
	// WaitingRetry 处于重试等待（定时器未触发）的任务数
	WaitingRetry int `json:"waiting_retry"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	Cancelled    int `json:"cancelled"`
	// AvgProcessing 最近 100 条任务的滚动平均处理耗时
	AvgProcessing time.Duration `json:"avg_processing"`
}
