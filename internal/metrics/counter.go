package metrics

import (
	"log"
	"sync"
)

var (
	storeMu     sync.RWMutex
	globalStore *Store
)

// Init opens the invocation store at dbPath and makes it the process-wide
// store used by RecordInvocation. Calling Init again replaces the store.
func Init(dbPath string) error {
	store, err := NewStore(dbPath)
	if err != nil {
		log.Printf("metrics: failed to initialize store: %v", err)
		return err
	}

	storeMu.Lock()
	previous := globalStore
	globalStore = store
	storeMu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

// RecordInvocation increments the count for the given outcome.
// If metrics are disabled (no store), this is a no-op.
func RecordInvocation(outcome Outcome) {
	storeMu.RLock()
	store := globalStore
	storeMu.RUnlock()
	if store == nil {
		return
	}

	if err := store.Increment(outcome); err != nil {
		log.Printf("metrics: failed to record %s invocation: %v", outcome, err)
	}
}

// GetStats returns cumulative counts per outcome, or nil when no store is open.
func GetStats() map[Outcome]int64 {
	storeMu.RLock()
	store := globalStore
	storeMu.RUnlock()
	if store == nil {
		return nil
	}

	stats, err := store.GetAllTotals()
	if err != nil {
		log.Printf("metrics: failed to get stats: %v", err)
		return nil
	}
	return stats
}

// Close closes the process-wide store.
func Close() error {
	storeMu.Lock()
	store := globalStore
	globalStore = nil
	storeMu.Unlock()

	if store != nil {
		return store.Close()
	}
	return nil
}

// SetStoreForTesting sets the global store instance.
// This should only be used in tests.
func SetStoreForTesting(store *Store) {
	storeMu.Lock()
	globalStore = store
	storeMu.Unlock()
}

// ResetForTesting closes and clears the global store.
// This should only be used in tests.
func ResetForTesting() {
	_ = Close()
}
