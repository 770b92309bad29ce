// Package catalog models the discovery input: the services under test and
// the collections currently associated with each of them.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Collection is one dataset collection associated with a service. ConceptID
// is the only field guaranteed stable across metadata edits; ShortName and
// Version are human-readable and mutable.
type Collection struct {
	ShortName string `json:"short_name"`
	Version   string `json:"version"`
	ConceptID string `json:"concept_id"`
}

// Service is one backend processing service chain. Name is mutable,
// ConceptID is immutable.
type Service struct {
	Name        string       `json:"name"`
	ConceptID   string       `json:"concept_id"`
	Collections []Collection `json:"collections"`
}

// LoadDiscovery reads the discovery input file produced by the external
// metadata-query collaborator: a JSON array of services, each with its
// ordered association set.
func LoadDiscovery(path string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery input: %w", err)
	}

	var services []Service
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("failed to parse discovery input %s: %w", path, err)
	}

	for i, svc := range services {
		if svc.ConceptID == "" {
			return nil, fmt.Errorf("discovery input %s: service %d has no concept_id", path, i)
		}
	}

	return services, nil
}

// FindService returns the service with the given concept ID.
func FindService(services []Service, conceptID string) (Service, bool) {
	for _, svc := range services {
		if svc.ConceptID == conceptID {
			return svc, true
		}
	}
	return Service{}, false
}
