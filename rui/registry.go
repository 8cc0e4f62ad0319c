package rui

import (
	"sort"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
)

type UpdateHandler func(operation *UpdateOperation)

// Registry maps the operation names of javascript-typed update operations to
// registered handler capabilities, populated at startup. An unknown name is a
// no-op with a logged warning, never a lookup failure.
type Registry struct {
	mutex    sync.Mutex
	handlers map[string]UpdateHandler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]UpdateHandler{},
	}
}

func (self *Registry) Register(name string, handler UpdateHandler) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.handlers[name] = handler
}

func (self *Registry) Dispatch(operation *UpdateOperation) bool {
	self.mutex.Lock()
	handler, ok := self.handlers[operation.Target]
	self.mutex.Unlock()
	if !ok {
		glog.Infof("[ui]no handler %s\n", operation.Target)
		return false
	}
	handler(operation)
	return true
}

func (self *Registry) HandlerNames() []string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	names := maps.Keys(self.handlers)
	sort.Strings(names)
	return names
}
