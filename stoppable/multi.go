////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Multi groups a set of Stoppables so they can be closed as one.
type Multi struct {
	name       string
	stoppables []Stoppable
	mux        sync.RWMutex
	once       sync.Once
}

// NewMulti returns a new empty Multi.
func NewMulti(name string) *Multi {
	return &Multi{name: name}
}

// Add adds the given Stoppable to the group.
func (m *Multi) Add(s Stoppable) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.stoppables = append(m.stoppables, s)
}

// Name returns the name of the Multi followed by the names of every Stoppable
// it holds.
func (m *Multi) Name() string {
	m.mux.RLock()
	defer m.mux.RUnlock()

	names := make([]string, len(m.stoppables))
	for i, s := range m.stoppables {
		names[i] = s.Name()
	}

	return m.name + "{" + strings.Join(names, ", ") + "}"
}

// GetStatus returns the lowest status of all the contained Stoppables. An
// empty Multi reports Stopped.
func (m *Multi) GetStatus() Status {
	m.mux.RLock()
	defer m.mux.RUnlock()

	lowest := Stopped
	for _, s := range m.stoppables {
		if status := s.GetStatus(); status < lowest {
			lowest = status
		}
	}

	return lowest
}

// IsRunning returns true if any contained Stoppable is still running.
func (m *Multi) IsRunning() bool {
	return m.GetStatus() == Running
}

// Close closes every contained Stoppable. It returns an error listing each
// Stoppable that failed to close; the rest are closed regardless.
func (m *Multi) Close() error {
	var failed []string

	m.once.Do(func() {
		m.mux.Lock()
		defer m.mux.Unlock()

		for _, s := range m.stoppables {
			if err := s.Close(); err != nil {
				failed = append(failed, s.Name())
			}
		}
	})

	if len(failed) > 0 {
		return errors.Errorf("multi stoppable %q failed to close %s",
			m.name, strings.Join(failed, ", "))
	}

	return nil
}
