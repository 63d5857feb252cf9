package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opsai/opsflow/engine/core"
)

var (
	// ErrDuplicateWorkflow is returned when an active definition with the
	// same tenant and name already exists.
	ErrDuplicateWorkflow = fmt.Errorf("workflow already registered")
	// ErrWorkflowNotFound is returned when no definition matches the lookup.
	ErrWorkflowNotFound = fmt.Errorf("workflow not found")
)

// Store holds immutable workflow definitions. Definitions are never deleted,
// only deactivated, so in-flight executions keep a reproducible snapshot.
type Store interface {
	Register(ctx context.Context, def *Config) (string, error)
	Get(ctx context.Context, workflowID, tenantID string) (*Config, error)
	GetByName(ctx context.Context, name, tenantID string) (*Config, error)
	Deactivate(ctx context.Context, workflowID string) error
	List(ctx context.Context, tenantID string) ([]*Config, error)
}

// -----------------------------------------------------------------------------
// In-memory store
// -----------------------------------------------------------------------------

// MemoryStore is the default definition store. Definition registration is a
// rare administrative action, so a mutex-guarded map is enough.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Config)}
}

func (s *MemoryStore) Register(_ context.Context, def *Config) (string, error) {
	if err := def.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Active && existing.TenantID == def.TenantID && existing.Name == def.Name {
			return "", fmt.Errorf("%w: %s", ErrDuplicateWorkflow, def.Name)
		}
	}
	if def.ID == "" {
		// Every registration gets a fresh ID so superseded versions stay
		// addressable; in-flight executions resume against their own snapshot.
		def.ID = fmt.Sprintf("%s-%s-%s", def.TenantID, def.Name, core.NewID())
	}
	if _, exists := s.byID[def.ID]; exists {
		return "", fmt.Errorf("%w: id %s", ErrDuplicateWorkflow, def.ID)
	}
	stored := *def
	s.byID[def.ID] = &stored
	return def.ID, nil
}

func (s *MemoryStore) Get(_ context.Context, workflowID, tenantID string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.byID[workflowID]
	if !ok || (tenantID != "" && def.TenantID != tenantID) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	copied := *def
	return &copied, nil
}

func (s *MemoryStore) GetByName(_ context.Context, name, tenantID string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Prefer the active definition when several versions share a name.
	var inactive *Config
	for _, def := range s.byID {
		if def.Name != name || def.TenantID != tenantID {
			continue
		}
		copied := *def
		if def.Active {
			return &copied, nil
		}
		inactive = &copied
	}
	if inactive != nil {
		return inactive, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
}

func (s *MemoryStore) Deactivate(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.byID[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	def.Active = false
	return nil
}

func (s *MemoryStore) List(_ context.Context, tenantID string) ([]*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Config, 0, len(s.byID))
	for _, def := range s.byID {
		if tenantID != "" && def.TenantID != tenantID {
			continue
		}
		copied := *def
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
