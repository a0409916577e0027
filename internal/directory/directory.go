// Package directory provides a file-backed DirectoryReader.
//
// The directory of record is external; this engine consumes periodic
// snapshots exported to a YAML file. The file is re-read on demand so an
// updated export is picked up without a restart.
package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"idflow/internal/domain"
)

var _ domain.DirectoryReader = (*File)(nil)

type principalSpec struct {
	ID         string            `yaml:"id"`
	Status     string            `yaml:"status"`
	Attributes map[string]string `yaml:"attributes"`
}

type snapshotFile struct {
	Principals []principalSpec `yaml:"principals"`
}

// File reads principals from a YAML snapshot export.
type File struct {
	path string

	mu         sync.RWMutex
	principals map[string]domain.Principal
}

// Load parses the snapshot at path and returns a reader over it.
func Load(path string) (*File, error) {
	f := &File{path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads the snapshot file, replacing the in-memory view
// atomically. On parse failure the previous view stays in place.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read directory snapshot: %w", err)
	}

	var snap snapshotFile
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse directory snapshot %s: %w", f.path, err)
	}

	principals := make(map[string]domain.Principal, len(snap.Principals))
	for _, spec := range snap.Principals {
		if spec.ID == "" {
			return fmt.Errorf("directory snapshot %s: principal with empty id", f.path)
		}
		if _, dup := principals[spec.ID]; dup {
			return fmt.Errorf("directory snapshot %s: duplicate principal %q", f.path, spec.ID)
		}
		status := domain.LifecycleStatus(spec.Status)
		switch status {
		case domain.StatusOnboarding, domain.StatusActive, domain.StatusTransferring, domain.StatusOffboarding:
		default:
			return fmt.Errorf("directory snapshot %s: principal %q has unknown status %q", f.path, spec.ID, spec.Status)
		}
		attrs := make(map[string]string, len(spec.Attributes))
		for k, v := range spec.Attributes {
			attrs[k] = v
		}
		principals[spec.ID] = domain.Principal{
			ID:         spec.ID,
			Attributes: attrs,
			Status:     status,
		}
	}

	f.mu.Lock()
	f.principals = principals
	f.mu.Unlock()
	return nil
}

func (f *File) GetPrincipal(_ context.Context, id string) (*domain.Principal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.principals[id]
	if !ok {
		return nil, domain.ErrNotFound("principal %q not found", id)
	}
	return &p, nil
}

func (f *File) ListPrincipals(_ context.Context, filter domain.PrincipalFilter) ([]domain.Principal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]domain.Principal, 0, len(f.principals))
	for _, p := range f.principals {
		if filter.Matches(&p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
