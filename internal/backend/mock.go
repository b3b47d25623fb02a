package backend

import (
	"context"
	"sync"
)

// Mock is a scriptable Client for tests. Results are consumed in order; the
// last one repeats once the script is exhausted.
type Mock struct {
	mu                    sync.Mutex
	Results               []*Result
	Errors                []error
	Calls                 int
	LastTask              Task
	LastSystemInstruction string
}

func (m *Mock) Translate(ctx context.Context, task Task) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.Calls
	m.Calls++
	m.LastTask = task

	pick := func(n int) int {
		if i < n {
			return i
		}
		return n - 1
	}

	var err error
	if len(m.Errors) > 0 {
		err = m.Errors[pick(len(m.Errors))]
	}
	var res *Result
	if len(m.Results) > 0 {
		res = m.Results[pick(len(m.Results))]
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Mock) SetSystemInstruction(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastSystemInstruction = prompt
}

// CallCount returns how many times Translate was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}
