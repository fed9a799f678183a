package sdk

import "sync"

// BasicFilter is a parameter bag usable by backends that implement filters
// themselves.
type BasicFilter struct {
	name string

	lock   sync.Mutex
	params map[string]int
}

func NewBasicFilter(name string) *BasicFilter {
	return &BasicFilter{name: name, params: make(map[string]int)}
}

func (f *BasicFilter) Name() string {
	return f.name
}

func (f *BasicFilter) SetParameter(param string, value int) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.params[param] = value

	return nil
}

func (f *BasicFilter) Parameter(param string) (int, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	v, ok := f.params[param]

	return v, ok
}
