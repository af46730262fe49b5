package pipeline

import (
	"sync"

	"github.com/iabetor/morningbrief/internal/logger"
)

// State 表示早报生成流水线的当前运行状态。
type State int

const (
	// StateIdle — 尚未生成过早报。
	StateIdle State = iota
	// StateFetching — 正在抓取新闻源。
	StateFetching
	// StateProcessing — 正在逐条加工新闻。
	StateProcessing
	// StateReady — 最近一次生成已结束（可能为空早报）。
	StateReady
)

var stateNames = [...]string{
	"Idle",
	"Fetching",
	"Processing",
	"Ready",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 管理线程安全的状态转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
	}
}

// SetOnChange 注册状态变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态。只有合法的转换才会生效：
//
//	Idle/Ready → Fetching    （开始生成）
//	Fetching   → Processing  （抓取成功）
//	Fetching   → Ready       （抓取失败，生成空早报）
//	Processing → Ready       （全部加工完毕）
//
// 任何状态都可以转换到 Idle（用于取消或错误恢复）。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Warnf("[state] 非法转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to
	logger.Debugf("[state] %s → %s", from, to)

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// ForceIdle 无条件重置状态为 Idle。
func (sm *StateMachine) ForceIdle() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	sm.current = StateIdle
	if from != StateIdle {
		logger.Debugf("[state] 强制重置 %s → Idle", from)
		if sm.onChange != nil {
			sm.onChange(from, StateIdle)
		}
	}
}

// validTransition 检查状态转换是否合法。
func validTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	switch from {
	case StateIdle, StateReady:
		return to == StateFetching
	case StateFetching:
		return to == StateProcessing || to == StateReady
	case StateProcessing:
		return to == StateReady
	}
	return false
}
