package breaker

import "sync"

// window кольцевой буфер исходов последних вызовов
type window struct {
	mu       sync.Mutex
	outcomes []bool // true = ошибка
	next     int
	filled   int
	failures int
}

func newWindow(size int) *window {
	return &window{outcomes: make([]bool, size)}
}

func (w *window) record(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.filled == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.filled++
	}
	w.outcomes[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

func (w *window) snapshot() (calls, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filled, w.failures
}

func (w *window) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.outcomes {
		w.outcomes[i] = false
	}
	w.next, w.filled, w.failures = 0, 0, 0
}
