package chain

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry indexes chain descriptors by id
type Registry struct {
	mutex  sync.RWMutex
	chains map[uint64]Chain
}

type registryFile struct {
	Chains []Chain `yaml:"chains"`
}

// NewRegistry creates a registry seeded with the built-in chains
func NewRegistry() *Registry {
	r := &Registry{chains: make(map[uint64]Chain)}
	for _, c := range BuiltIn() {
		r.chains[c.ID] = c
	}
	return r
}

// LoadRegistry reads a YAML chain file on top of the built-in chains. Entries
// with the id of a built-in chain replace it.
func LoadRegistry(path string) (*Registry, error) {
	r := NewRegistry()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain file %s: %w", path, err)
	}
	if err := r.Merge(data); err != nil {
		return nil, fmt.Errorf("failed to load chain file %s: %w", path, err)
	}
	return r, nil
}

// Merge decodes YAML chain definitions and adds them to the registry
func (r *Registry) Merge(data []byte) error {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for _, c := range file.Chains {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, c := range file.Chains {
		r.chains[c.ID] = c
	}
	return nil
}

// Register adds or replaces a chain
func (r *Registry) Register(c Chain) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.chains[c.ID] = c
	return nil
}

// Lookup returns the chain with the given id
func (r *Registry) Lookup(id uint64) (Chain, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	c, ok := r.chains[id]
	return c, ok
}

// Chains returns all registered chains ordered by id
func (r *Registry) Chains() []Chain {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
