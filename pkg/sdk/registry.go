package sdk

import (
	"fmt"
	"sort"
	"sync"
)

type Factory func() (Library, error)

var (
	registry = make(map[string]Factory)
	regLock  sync.Mutex
)

// Register makes a backend available by name. Backends call it from init.
func Register(name string, factory Factory) {
	regLock.Lock()
	defer regLock.Unlock()
	registry[name] = factory
}

func Get(name string) (Library, error) {
	regLock.Lock()
	factory, ok := registry[name]
	regLock.Unlock()
	if !ok {
		return nil, fmt.Errorf("sdk backend %q is not registered", name)
	}

	return factory()
}

func Backends() []string {
	regLock.Lock()
	defer regLock.Unlock()
	res := make([]string, 0, len(registry))
	for name := range registry {
		res = append(res, name)
	}
	sort.Strings(res)

	return res
}
