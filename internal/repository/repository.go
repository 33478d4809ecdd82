// Package repository provides per-kind data access bound to one project
// database connection. A Set is produced once per project root and never
// mixes connections.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/identity"
)

var (
	ErrNotFound     = errors.New("entity not found")
	ErrInvalidKind  = errors.New("invalid item kind")
	ErrInvalidDepth = errors.New("invalid traversal depth")
)

// Set holds the accessors for one project database.
type Set struct {
	conn         graphdb.Conn
	repositories *RepositoryRepository
	components   *ComponentRepository
	decisions    *DecisionRepository
	rules        *RuleRepository
	files        *FileRepository
	tags         *TagRepository
	contexts     *ContextRepository
}

func NewSet(conn graphdb.Conn) *Set {
	repos := newRepositoryRepository(conn)
	return &Set{
		conn:         conn,
		repositories: repos,
		components:   &ComponentRepository{store: newNodeStore(conn, repos, graphdb.KindComponent, componentColumns)},
		decisions:    &DecisionRepository{store: newNodeStore(conn, repos, graphdb.KindDecision, decisionColumns)},
		rules:        &RuleRepository{store: newNodeStore(conn, repos, graphdb.KindRule, ruleColumns)},
		files:        &FileRepository{store: newNodeStore(conn, repos, graphdb.KindFile, fileColumns)},
		tags:         &TagRepository{store: newNodeStore(conn, repos, graphdb.KindTag, tagColumns)},
		contexts:     &ContextRepository{store: newNodeStore(conn, repos, graphdb.KindContext, contextColumns)},
	}
}

// Conn returns the connection every accessor in the set is bound to.
func (s *Set) Conn() graphdb.Conn { return s.conn }

func (s *Set) Repositories() *RepositoryRepository { return s.repositories }
func (s *Set) Components() *ComponentRepository    { return s.components }
func (s *Set) Decisions() *DecisionRepository      { return s.decisions }
func (s *Set) Rules() *RuleRepository              { return s.rules }
func (s *Set) Files() *FileRepository              { return s.files }
func (s *Set) Tags() *TagRepository                { return s.tags }
func (s *Set) Contexts() *ContextRepository        { return s.contexts }

// Stats counts the scoped nodes of each kind in repository/branch.
func (s *Set) Stats(ctx context.Context, repository, branch string) (map[string]int64, error) {
	if err := identity.ValidateScope(repository, branch); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(graphdb.ScopedKinds))
	for _, kind := range graphdb.ScopedKinds {
		row, err := graphdb.QueryOne(ctx, s.conn,
			fmt.Sprintf(`MATCH (n:%s) WHERE n.repository = $repository AND n.branch = $branch RETURN count(n) AS count`, kind),
			map[string]any{"repository": repository, "branch": branch})
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		if row != nil {
			out[kind] = row.Int64("count")
		} else {
			out[kind] = 0
		}
	}
	return out, nil
}
