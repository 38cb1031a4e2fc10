package database

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies which pipeline operation produced a run.
type Kind string

const (
	KindAnalysis    Kind = "analysis"
	KindPage        Kind = "page"
	KindRoadmap     Kind = "roadmap"
	KindReplication Kind = "replication"
)

// Run is a stored pipeline result.
type Run struct {
	ID        string
	Kind      Kind
	SiteURL   string
	Status    string
	Summary   string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// NewRun builds a run with payload encoded as JSON.
func NewRun(kind Kind, siteURL, status, summary string, payload any) (*Run, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return &Run{
		Kind:    kind,
		SiteURL: siteURL,
		Status:  status,
		Summary: summary,
		Payload: data,
	}, nil
}

// Decode unmarshals the stored payload into v.
func (r *Run) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decoding run %s: %w", r.ID, err)
	}
	return nil
}
