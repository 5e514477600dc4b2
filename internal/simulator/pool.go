package simulator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type deviceSet struct {
	Simulators []Simulator `yaml:"simulators"`
}

// Pool is an in-memory device set, optionally backed by a YAML file. State
// changes are written back to that file.
type Pool struct {
	mu   sync.Mutex
	path string
	sims []Simulator
}

// NewPool builds an unbacked pool, mostly for tests and embedding.
func NewPool(sims ...Simulator) *Pool {
	return &Pool{sims: append([]Simulator(nil), sims...)}
}

// LoadPool reads a device set file. A missing file yields an empty pool
// that is created on the first state change.
func LoadPool(path string) (*Pool, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("device set path is required")
	}
	p := &Pool{path: trimmed}
	data, err := os.ReadFile(trimmed)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	var set deviceSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse device set %s: %w", trimmed, err)
	}
	seen := make(map[string]bool, len(set.Simulators))
	for i, s := range set.Simulators {
		if strings.TrimSpace(s.UDID) == "" {
			return nil, fmt.Errorf("device set %s: simulator %d has no udid", trimmed, i)
		}
		if seen[s.UDID] {
			return nil, fmt.Errorf("device set %s: duplicate udid %s", trimmed, s.UDID)
		}
		seen[s.UDID] = true
		if s.State == "" {
			set.Simulators[i].State = StateShutdown
			continue
		}
		st, err := ParseState(string(s.State))
		if err != nil {
			return nil, fmt.Errorf("device set %s: %s: %w", trimmed, s.UDID, err)
		}
		set.Simulators[i].State = st
	}
	p.sims = set.Simulators
	return p, nil
}

// Path is the backing file, or "" for an unbacked pool.
func (p *Pool) Path() string { return p.path }

// All returns a copy of every simulator in file order.
func (p *Pool) All() []Simulator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Simulator(nil), p.sims...)
}

// Filter returns the simulators matching q in file order.
func (p *Pool) Filter(q Query) []Simulator {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Simulator
	for _, s := range p.sims {
		if q.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

// Get looks up a simulator by udid.
func (p *Pool) Get(udid string) (Simulator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.index(udid)
	if i < 0 {
		return Simulator{}, fmt.Errorf("%w: %s", ErrNotFound, udid)
	}
	return p.sims[i], nil
}

// Boot moves a shut down simulator to booted.
func (p *Pool) Boot(udid string) (Simulator, error) {
	return p.transition(udid, StateShutdown, StateBooted)
}

// Shutdown moves a booted simulator to shutdown.
func (p *Pool) Shutdown(udid string) (Simulator, error) {
	return p.transition(udid, StateBooted, StateShutdown)
}

func (p *Pool) transition(udid string, from, to State) (Simulator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.index(udid)
	if i < 0 {
		return Simulator{}, fmt.Errorf("%w: %s", ErrNotFound, udid)
	}
	if p.sims[i].State != from {
		return p.sims[i], fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidState, udid, p.sims[i].State, from)
	}
	prev := p.sims[i].State
	p.sims[i].State = to
	if err := p.saveLocked(); err != nil {
		p.sims[i].State = prev
		return p.sims[i], err
	}
	return p.sims[i], nil
}

// Save writes the pool back to its file. Unbacked pools are not saved.
func (p *Pool) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveLocked()
}

func (p *Pool) saveLocked() error {
	if p.path == "" {
		return nil
	}
	data, err := yaml.Marshal(deviceSet{Simulators: p.sims})
	if err != nil {
		return fmt.Errorf("marshal device set: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

// SystemLog returns the path of a simulator's system log, which lives next
// to the device set at <dir>/<udid>/data/Library/Logs/system.log. ok is
// false when the pool is unbacked or the log does not exist.
func (p *Pool) SystemLog(s Simulator) (path string, ok bool) {
	if p.path == "" {
		return "", false
	}
	path = filepath.Join(filepath.Dir(p.path), s.UDID, "data", "Library", "Logs", "system.log")
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

func (p *Pool) index(udid string) int {
	for i, s := range p.sims {
		if s.UDID == udid {
			return i
		}
	}
	return -1
}
