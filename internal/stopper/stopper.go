// Package stopper lets long-running commands check between steps whether someone asked them
// to stop. Operations are keyed by the channel they run in and the command name.
package stopper

import (
	"sort"
	"sync"
)

type key struct {
	channel string
	command string
}

type Store struct {
	mu sync.Mutex
	// an entry exists while an operation is known to be running, its value is whether it was
	// asked to stop
	flags map[key]bool
}

func NewStore() *Store {
	return &Store{flags: map[key]bool{}}
}

// ShouldStop registers the operation on first call and reports whether it was asked to stop.
// A true result is consumed, the operation is forgotten until it asks again.
func (s *Store) ShouldStop(channel, command string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{channel: channel, command: command}
	stop, ok := s.flags[k]
	if !ok {
		s.flags[k] = false
		return false
	}
	if stop {
		delete(s.flags, k)
	}
	return stop
}

// RequestStop asks a running operation to stop at its next check. It returns false if no
// such operation is running, in which case nothing is recorded.
func (s *Store) RequestStop(channel, command string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{channel: channel, command: command}
	if _, ok := s.flags[k]; !ok {
		return false
	}
	s.flags[k] = true
	return true
}

// Running returns the commands of a channel that are known to be running, sorted.
func (s *Store) Running(channel string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var commands []string
	for k := range s.flags {
		if k.channel == channel {
			commands = append(commands, k.command)
		}
	}
	sort.Strings(commands)
	return commands
}
