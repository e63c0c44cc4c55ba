package flagsync

import (
	"strings"
	"sync"
)

// instanceRegistry tracks how many clients share a server identity inside
// this process. It guards against accidental duplicate background polling
// against the same server: a second client under the same identity warns by
// default and errors in strict mode.
type instanceRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

var instances = &instanceRegistry{counts: make(map[string]int)}

// identityKey derives the registry key from the credentials and identity a
// server would see.
func identityKey(apiToken, appName, instanceID string) string {
	return strings.Join([]string{apiToken, appName, instanceID}, "/")
}

// register increments the count for key and returns the new total.
func (r *instanceRegistry) register(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key]
}

// release decrements the count for key, removing it at zero.
func (r *instanceRegistry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.counts[key]; ok {
		if n <= 1 {
			delete(r.counts, key)
		} else {
			r.counts[key] = n - 1
		}
	}
}
