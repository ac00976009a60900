package chart

import (
	"sync"

	"tradefeed/internal/domain/model"
)

type Dir int

const (
	DirSame Dir = 0
	DirUp   Dir = +1
	DirDown Dir = -1
)

// StreamState 一个图表流的最新状态
type StreamState struct {
	Key   string
	Last  model.KLinePoint
	Dir   Dir
	Ticks int
	Seen  bool
}

// State 所有图表流的状态，按加入顺序
type State struct {
	mu sync.Mutex

	order   []string
	streams map[string]*StreamState
}

func NewState() *State {
	return &State{streams: make(map[string]*StreamState)}
}

// Seed 用历史最后一根初始化，不计入实时推送
func (s *State) Seed(key string, last model.KLinePoint, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streamLocked(key)
	if ok {
		st.Last = last
		st.Seen = true
	}
}

// Apply 应用一次实时推送，返回收盘价是否变化
func (s *State) Apply(key string, p model.KLinePoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.streamLocked(key)
	st.Ticks++
	if !st.Seen {
		st.Last, st.Seen, st.Dir = p, true, DirSame
		return true
	}

	prev := st.Last.Close
	st.Last = p
	switch {
	case p.Close > prev:
		st.Dir = DirUp
	case p.Close < prev:
		st.Dir = DirDown
	default:
		st.Dir = DirSame
		return false
	}
	return true
}

func (s *State) streamLocked(key string) *StreamState {
	st, ok := s.streams[key]
	if !ok {
		st = &StreamState{Key: key}
		s.streams[key] = st
		s.order = append(s.order, key)
	}
	return st
}

// Snapshot 按加入顺序复制
func (s *State) Snapshot() []StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StreamState, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.streams[k])
	}
	return out
}
