package cache

import (
	"log/slog"
	"sync"
	"time"

	applog "bollette/internal/log"
)

// Cache is a keyed store with expiring values.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	// Claim stores data only when key is absent or expired and reports
	// whether it did.
	Claim(key string, data T) bool
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that can drop their expired items.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans the caches registered with it.
type Manager struct {
	mu     sync.Mutex
	caches []Cleaner
	stop   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

func NewManager() *Manager {
	return &Manager{
		logger: slog.Default().With(applog.FieldComponent, applog.ComponentCache),
	}
}

// Register adds a cache to the periodic cleanup.
func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup cleans all registered caches every interval until Stop.
// Calling it twice has no effect.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil || interval <= 0 {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.cleanup(interval, m.stop, m.done)
}

// CleanNow runs one cleanup pass and returns the number of removed items.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Expired cache items removed", "removed", n)
			}
		case <-stop:
			return
		}
	}
}

// Stop ends the cleanup goroutine and waits for it.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
