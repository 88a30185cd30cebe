package sandbox

import (
	"sync"
	"time"
)

// memoryMonitor samples a process's resident set size on an interval and
// remembers the peak. When a limit is set and exceeded, the kill callback
// fires once and Exceeded reports true.
type memoryMonitor struct {
	pid      int
	limitKB  int64
	interval time.Duration
	kill     func()

	mu       sync.Mutex
	peakKB   int64
	exceeded bool

	done chan struct{}
	wg   sync.WaitGroup
}

// startMemoryMonitor begins sampling pid. limitKB <= 0 disables enforcement
// but still tracks the peak. kill may be nil.
func startMemoryMonitor(pid int, limitKB int64, interval time.Duration, kill func()) *memoryMonitor {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	m := &memoryMonitor{
		pid:      pid,
		limitKB:  limitKB,
		interval: interval,
		kill:     kill,
		done:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

func (m *memoryMonitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			rss, err := sampleRSSKB(m.pid)
			if err != nil {
				// Process already gone or platform without sampling.
				continue
			}
			m.mu.Lock()
			if rss > m.peakKB {
				m.peakKB = rss
			}
			over := m.limitKB > 0 && rss > m.limitKB && !m.exceeded
			if over {
				m.exceeded = true
			}
			m.mu.Unlock()
			if over && m.kill != nil {
				m.kill()
			}
		}
	}
}

// Stop ends sampling and returns the peak RSS in KB and whether the limit
// was exceeded. Safe to call once.
func (m *memoryMonitor) Stop() (peakKB int64, exceeded bool) {
	close(m.done)
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakKB, m.exceeded
}
