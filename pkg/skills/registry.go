// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// rankFuzziness is the per-term edit distance tolerated by ranking.
const rankFuzziness = 1

// Scored is a ranked skill name with a confidence in (0, 1].
type Scored struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Registry stores skills and ranks them against natural-language queries.
// Registration should complete before concurrent lookups start.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
	order  []string
	index  bleve.Index

	// pools holds indexes over the skills a role subset may use, keyed by
	// the joined pool names. Any catalog change drops them.
	poolMu sync.Mutex
	pools  map[string]bleve.Index

	searches atomic.Int64
}

type skillDocument struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// NewRegistry creates an empty registry backed by an in-memory index.
func NewRegistry() (*Registry, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create skill index: %w", err)
	}
	return &Registry{
		skills: make(map[string]*Skill),
		index:  index,
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("name", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Register validates spec, stores the skill and indexes it.
func (r *Registry) Register(spec Spec) (string, error) {
	skill, err := newSkill(spec)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		return "", errors.New(errors.CodeInternal, "skill registry is closed", nil)
	}
	if _, exists := r.skills[skill.Name]; exists {
		return "", errors.Validation("skill %q is already registered", skill.Name).
			WithContext("skill", skill.Name)
	}
	doc := skillDocument{Name: skill.Name, Content: skill.searchText()}
	if err := r.index.Index(skill.Name, doc); err != nil {
		return "", fmt.Errorf("index skill %q: %w", skill.Name, err)
	}
	r.skills[skill.Name] = skill
	r.order = append(r.order, skill.Name)
	r.dropPools()
	return skill.Name, nil
}

// Get returns the named skill.
func (r *Registry) Get(name string) (*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.skills[strings.TrimSpace(name)]
	if !ok {
		return nil, errors.NotFound("skill", name)
	}
	return skill, nil
}

// Names returns skill names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Remove unregisters a skill.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[name]; !ok {
		return errors.NotFound("skill", name)
	}
	if r.index != nil {
		if err := r.index.Delete(name); err != nil {
			return fmt.Errorf("unindex skill %q: %w", name, err)
		}
	}
	delete(r.skills, name)
	r.dropPools()
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear drops every skill and starts a fresh index.
func (r *Registry) Clear() error {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create skill index: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		_ = r.index.Close()
	}
	r.dropPools()
	r.index = index
	r.skills = make(map[string]*Skill)
	r.order = nil
	return nil
}

// Close releases the index. The registry is unusable afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		return nil
	}
	err := r.index.Close()
	r.dropPools()
	r.index = nil
	r.skills = make(map[string]*Skill)
	r.order = nil
	return err
}

// Rank returns the names of skills usable by role, best match first.
func (r *Registry) Rank(q, role string) ([]string, error) {
	scored, err := r.RankScored(q, role)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(scored))
	for i, s := range scored {
		names[i] = s.Name
	}
	return names, nil
}

// RankScored is Rank with position-derived confidence scores. The search
// runs on an index holding only the skills role may use, so term
// statistics never include restricted skills.
func (r *Registry) RankScored(q, role string) ([]Scored, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Scored{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.index == nil {
		return nil, errors.New(errors.CodeInternal, "skill registry is closed", nil)
	}

	allowed := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.skills[name].AllowsRole(role) {
			allowed = append(allowed, name)
		}
	}
	if len(allowed) == 0 {
		return nil, noMatch(q, role)
	}

	index, err := r.poolIndex(allowed)
	if err != nil {
		return nil, err
	}

	match := bleve.NewMatchQuery(q)
	match.SetField("content")
	match.SetFuzziness(rankFuzziness)

	req := bleve.NewSearchRequest(match)
	req.Size = len(allowed)
	req.SortBy([]string{"-_score", "_id"})

	r.searches.Add(1)
	result, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search skills: %w", err)
	}
	if len(result.Hits) == 0 {
		return nil, noMatch(q, role)
	}

	n := len(result.Hits)
	out := make([]Scored, 0, n)
	for i, hit := range result.Hits {
		out = append(out, Scored{Name: hit.ID, Score: float64(n-i) / float64(n)})
	}
	return out, nil
}

// poolIndex returns an index over exactly the allowed skills. The caller
// holds r.mu.
func (r *Registry) poolIndex(allowed []string) (bleve.Index, error) {
	if len(allowed) == len(r.order) {
		return r.index, nil
	}
	key := strings.Join(allowed, "\x00")

	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	if index, ok := r.pools[key]; ok {
		return index, nil
	}
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create skill pool index: %w", err)
	}
	batch := index.NewBatch()
	for _, name := range allowed {
		doc := skillDocument{Name: name, Content: r.skills[name].searchText()}
		if err := batch.Index(name, doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("index skill %q: %w", name, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("index skill pool: %w", err)
	}
	if r.pools == nil {
		r.pools = make(map[string]bleve.Index)
	}
	r.pools[key] = index
	return index, nil
}

// dropPools closes the pool indexes. The caller holds r.mu for writing.
func (r *Registry) dropPools() {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	for _, index := range r.pools {
		_ = index.Close()
	}
	r.pools = nil
}

func noMatch(q, role string) error {
	return errors.New(errors.CodeNotFound, "no skills matched", nil).
		WithContext("query", q).
		WithContext("role", role)
}
