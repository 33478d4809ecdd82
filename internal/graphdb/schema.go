package graphdb

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Node table names.
const (
	KindRepository = "Repository"
	KindComponent  = "Component"
	KindDecision   = "Decision"
	KindRule       = "Rule"
	KindFile       = "File"
	KindTag        = "Tag"
	KindContext    = "Context"
)

// Relationship table names.
const (
	RelPartOf     = "PART_OF"
	RelDependsOn  = "DEPENDS_ON"
	RelGoverns    = "GOVERNS"
	RelContextOf  = "CONTEXT_OF"
	RelImplements = "IMPLEMENTS"
	RelTaggedWith = "TAGGED_WITH"
)

// ScopedKinds are the node kinds addressed by a graph-unique id.
var ScopedKinds = []string{KindComponent, KindDecision, KindRule, KindFile, KindTag, KindContext}

// NodeKinds lists every node table in creation order.
var NodeKinds = append([]string{KindRepository}, ScopedKinds...)

// RelKinds lists every relationship table in creation order.
var RelKinds = []string{RelPartOf, RelDependsOn, RelGoverns, RelContextOf, RelImplements, RelTaggedWith}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be interpolated into a query as a
// table or graph name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// IsNodeKind reports whether kind names a node table of the schema.
func IsNodeKind(kind string) bool {
	return contains(NodeKinds, kind)
}

// IsRelKind reports whether kind names a relationship table of the schema.
func IsRelKind(kind string) bool {
	return contains(RelKinds, kind)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

const scopedColumns = `graph_unique_id STRING, id STRING, repository STRING, branch STRING, name STRING, created_at TIMESTAMP, updated_at TIMESTAMP`

var nodeTables = []string{
	`CREATE NODE TABLE IF NOT EXISTS Repository(id STRING, name STRING, branch STRING, created_at TIMESTAMP, updated_at TIMESTAMP, PRIMARY KEY(id))`,
	`CREATE NODE TABLE IF NOT EXISTS Component(` + scopedColumns + `, kind STRING, status STRING, depends_on STRING[], PRIMARY KEY(graph_unique_id))`,
	`CREATE NODE TABLE IF NOT EXISTS Decision(` + scopedColumns + `, date STRING, context STRING, status STRING, PRIMARY KEY(graph_unique_id))`,
	`CREATE NODE TABLE IF NOT EXISTS Rule(` + scopedColumns + `, created STRING, content STRING, triggers STRING[], status STRING, PRIMARY KEY(graph_unique_id))`,
	`CREATE NODE TABLE IF NOT EXISTS File(` + scopedColumns + `, path STRING, language STRING, size INT64, content_hash STRING, PRIMARY KEY(graph_unique_id))`,
	`CREATE NODE TABLE IF NOT EXISTS Tag(` + scopedColumns + `, color STRING, description STRING, category STRING, PRIMARY KEY(graph_unique_id))`,
	`CREATE NODE TABLE IF NOT EXISTS Context(` + scopedColumns + `, agent STRING, summary STRING, iso_date STRING, observations STRING[], PRIMARY KEY(graph_unique_id))`,
}

func relTables() []string {
	partOf := make([]string, 0, len(ScopedKinds))
	tagged := make([]string, 0, len(ScopedKinds))
	for _, kind := range ScopedKinds {
		partOf = append(partOf, fmt.Sprintf("FROM %s TO %s", kind, KindRepository))
		if kind != KindTag {
			tagged = append(tagged, fmt.Sprintf("FROM %s TO %s", kind, KindTag))
		}
	}
	return []string{
		`CREATE REL TABLE IF NOT EXISTS PART_OF(` + strings.Join(partOf, ", ") + `)`,
		`CREATE REL TABLE IF NOT EXISTS DEPENDS_ON(FROM Component TO Component)`,
		`CREATE REL TABLE IF NOT EXISTS GOVERNS(FROM Decision TO Component, FROM Rule TO Component)`,
		`CREATE REL TABLE IF NOT EXISTS CONTEXT_OF(FROM Context TO Component)`,
		`CREATE REL TABLE IF NOT EXISTS IMPLEMENTS(FROM Component TO File)`,
		`CREATE REL TABLE IF NOT EXISTS TAGGED_WITH(` + strings.Join(tagged, ", ") + `)`,
	}
}

// SchemaStatements returns the DDL that creates every table, in order.
func SchemaStatements() []string {
	out := make([]string, 0, len(nodeTables)+len(RelKinds))
	out = append(out, nodeTables...)
	return append(out, relTables()...)
}

// Extensions required by the algorithm procedures.
var Extensions = []string{"algo"}

// Migrate creates the schema and loads the engine extensions. It is safe to
// run against an already initialized database.
func Migrate(ctx context.Context, conn Conn, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, stmt := range SchemaStatements() {
		if _, err := conn.Query(ctx, stmt, nil); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	for _, ext := range Extensions {
		// Installing needs network access the first time; a preinstalled
		// extension still loads, so only the load result is fatal.
		if _, err := conn.Query(ctx, "INSTALL "+ext, nil); err != nil {
			logger.Debug("install extension", "extension", ext, "error", err)
		}
		if _, err := conn.Query(ctx, "LOAD "+ext, nil); err != nil {
			if isAlreadyLoaded(err) {
				continue
			}
			return fmt.Errorf("load extension %s: %w", ext, err)
		}
	}
	return nil
}

func isAlreadyLoaded(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already loaded") || strings.Contains(msg, "already been loaded")
}
