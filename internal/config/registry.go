package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/webintel/webintel/internal/rag"
	"github.com/webintel/webintel/pkg/provider/embeddings"
	"github.com/webintel/webintel/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
	serp       map[string]func(ProviderEntry) (rag.SERPClient, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
		serp:       make(map[string]func(ProviderEntry) (rag.SERPClient, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterSERP registers a SERP adapter factory under name.
func (r *Registry) RegisterSERP(name string, factory func(ProviderEntry) (rag.SERPClient, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serp[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSERP instantiates a SERP adapter using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name;
// callers that don't configure Providers.SERP should skip calling this entirely,
// since the RAG Answerer treats a nil SERPClient as "Phase 4 disabled", not an error.
func (r *Registry) CreateSERP(entry ProviderEntry) (rag.SERPClient, error) {
	r.mu.RLock()
	factory, ok := r.serp[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: serp/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
