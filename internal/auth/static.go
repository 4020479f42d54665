package auth

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/erikvandergeld/focalize/internal/apperr"
)

// StaticSource resolves credentials against a principal directory loaded from
// a YAML file. It stands in for the external identity provider in
// deployments that do not have one.
type StaticSource struct {
	byToken map[string]Principal
	byID    map[string]Principal
}

// Entry pairs a principal with the bearer token that resolves to it.
type Entry struct {
	Principal `yaml:",inline"`
	Token     string `yaml:"token"`
}

type staticFile struct {
	Principals []Entry `yaml:"principals"`
}

// LoadStaticSource reads a principal directory from path.
func LoadStaticSource(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read principals file: %w", err)
	}

	var f staticFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse principals file: %w", err)
	}
	return NewStaticSource(f.Principals)
}

// NewStaticSource builds a source from in-memory entries.
func NewStaticSource(entries []Entry) (*StaticSource, error) {
	s := &StaticSource{
		byToken: make(map[string]Principal, len(entries)),
		byID:    make(map[string]Principal, len(entries)),
	}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("principal with empty id")
		}
		if _, dup := s.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate principal id %q", e.ID)
		}
		s.byID[e.ID] = e.Principal
		if e.Token != "" {
			s.byToken[e.Token] = e.Principal
		}
	}
	return s, nil
}

// Resolve implements Source.
func (s *StaticSource) Resolve(_ context.Context, credential string) (Principal, error) {
	p, ok := s.byToken[credential]
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}

// Principal implements Directory.
func (s *StaticSource) Principal(_ context.Context, id string) (Principal, error) {
	p, ok := s.byID[id]
	if !ok {
		return Principal{}, apperr.New(apperr.NotFound, "principal %q not found", id)
	}
	return p, nil
}

// Principals implements Directory. The result is sorted by id for stable
// iteration.
func (s *StaticSource) Principals(_ context.Context) ([]Principal, error) {
	out := make([]Principal, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
