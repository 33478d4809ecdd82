package models

import "time"

// Scope identifies the repository checkout an entity belongs to.
type Scope struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

type Repository struct {
	ID        string    `json:"id"` // "name:branch"
	Name      string    `json:"name"`
	Branch    string    `json:"branch"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Base carries the fields every scoped node shares. GraphUniqueID is derived
// from Scope and ID and is never written by callers.
type Base struct {
	Scope
	ID            string    `json:"id"`
	GraphUniqueID string    `json:"graph_unique_id,omitempty"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SetScope places the node in s.
func (b *Base) SetScope(s Scope) { b.Scope = s }

type Component struct {
	Base
	Kind      string   `json:"kind,omitempty"`
	Status    string   `json:"status"` // "active", "deprecated", "planned"
	DependsOn []string `json:"depends_on,omitempty"`
}

type Decision struct {
	Base
	Date       string   `json:"date"`
	Context    string   `json:"context,omitempty"`
	Status     string   `json:"status"` // "proposed", "accepted", "rejected", "superseded"
	Components []string `json:"components,omitempty"`
}

type Rule struct {
	Base
	Created    string   `json:"created"`
	Content    string   `json:"content,omitempty"`
	Triggers   []string `json:"triggers,omitempty"`
	Status     string   `json:"status"` // "active", "deprecated"
	Components []string `json:"components,omitempty"`
}

type File struct {
	Base
	Path        string   `json:"path"`
	Language    string   `json:"language,omitempty"`
	Size        int64    `json:"size,omitempty"`
	ContentHash string   `json:"content_hash,omitempty"`
	Components  []string `json:"components,omitempty"` // components implemented by this file
}

type Tag struct {
	Base
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type Context struct {
	Base
	Agent        string   `json:"agent,omitempty"`
	Summary      string   `json:"summary"`
	ISODate      string   `json:"iso_date"`
	Observations []string `json:"observations,omitempty"`
	Components   []string `json:"components,omitempty"`
}

// Item is a lightweight reference to any scoped node, used by graph queries.
type Item struct {
	Kind          string `json:"kind"`
	ID            string `json:"id"`
	GraphUniqueID string `json:"graph_unique_id"`
	Name          string `json:"name"`
}

const (
	ComponentStatusActive     = "active"
	ComponentStatusDeprecated = "deprecated"
	ComponentStatusPlanned    = "planned"
)

const (
	DecisionStatusProposed   = "proposed"
	DecisionStatusAccepted   = "accepted"
	DecisionStatusRejected   = "rejected"
	DecisionStatusSuperseded = "superseded"
)

const (
	RuleStatusActive     = "active"
	RuleStatusDeprecated = "deprecated"
)

func IsComponentStatus(s string) bool {
	switch s {
	case ComponentStatusActive, ComponentStatusDeprecated, ComponentStatusPlanned:
		return true
	}
	return false
}

func IsDecisionStatus(s string) bool {
	switch s {
	case DecisionStatusProposed, DecisionStatusAccepted, DecisionStatusRejected, DecisionStatusSuperseded:
		return true
	}
	return false
}

func IsRuleStatus(s string) bool {
	return s == RuleStatusActive || s == RuleStatusDeprecated
}
