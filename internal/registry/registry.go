// Package registry is the gate type registry (spec §4.1, "C1 Gate
// Registry"): an O(1) type-to-handler lookup that built-in gates populate
// via init(), mirroring the teacher's hosting.RegisterProvider pattern.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/policyforge/engine/internal/gatekit"
)

var (
	mu       sync.RWMutex
	handlers = map[string]gatekit.Handler{}
)

// Register adds a handler for a gate type. It panics on a duplicate
// registration, since that can only happen from a programming error in an
// init() function, never from user-controlled policy content.
func Register(gateType string, h gatekit.Handler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := handlers[gateType]; exists {
		panic(fmt.Sprintf("registry: gate type %q already registered", gateType))
	}
	handlers[gateType] = h
}

// Lookup returns the handler for a gate type, and whether it is registered.
func Lookup(gateType string) (gatekit.Handler, bool) {
	mu.RLock()
	defer mu.RUnlock()
	h, ok := handlers[gateType]
	return h, ok
}

// Types returns every registered gate type, sorted, mainly for `gates list`.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(handlers))
	for t := range handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
