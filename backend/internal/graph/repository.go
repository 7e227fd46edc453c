package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"cdr-graph/backend/pkg/logger"
)

// Repository is the Neo4j-backed Store. The driver is owned by the caller,
// who opens, verifies and closes it.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewRepository creates a new graph repository. An empty database selects
// the server default.
func NewRepository(driver neo4j.DriverWithContext, database string) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		logger:   logger.Named("graph"),
	}
}

// Ping verifies the server is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

// MergeNodes creates every missing (label {id}) node in one statement.
func (r *Repository) MergeNodes(ctx context.Context, label string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, map[string]any{"id": id})
	}

	query := fmt.Sprintf(`
		UNWIND $nodes AS node
		MERGE (n:%s {id: node.id})
	`, quoteIdentifier(label))

	if err := r.write(ctx, query, map[string]any{"nodes": rows}); err != nil {
		return fmt.Errorf("failed to merge %s nodes: %w", label, err)
	}

	r.logger.Debug("Nodes merged",
		zap.String("label", label),
		zap.Int("count", len(ids)),
	)
	return nil
}

// MergeRelationships merges one relationship per entry between existing
// endpoints and replaces its properties. Entries whose endpoints are missing
// match nothing and are skipped by the server.
func (r *Repository) MergeRelationships(ctx context.Context, key EdgeKey, rels []Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(rels))
	for _, rel := range rels {
		rows = append(rows, map[string]any{
			"from":  rel.From,
			"to":    rel.To,
			"props": propsParam(rel.Props),
		})
	}

	query := fmt.Sprintf(`
		UNWIND $rels AS r
		MATCH (a:%s {id: r.from})
		MATCH (b:%s {id: r.to})
		MERGE (a)-[rel:%s]->(b)
		SET rel = r.props
	`, quoteIdentifier(key.FromLabel), quoteIdentifier(key.ToLabel), quoteIdentifier(key.RelType))

	if err := r.write(ctx, query, map[string]any{"rels": rows}); err != nil {
		return fmt.Errorf("failed to merge %s relationships: %w", key, err)
	}

	r.logger.Debug("Relationships merged",
		zap.String("group", key.String()),
		zap.Int("count", len(rels)),
	)
	return nil
}

// CountNodes returns node counts per known label.
func (r *Repository) CountNodes(ctx context.Context) (map[string]int64, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (n)
		UNWIND labels(n) AS label
		WITH label
		WHERE label IN $labels
		RETURN label, count(*) AS count
	`

	result, err := session.Run(ctx, query, map[string]any{"labels": Labels})
	if err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}

	counts := make(map[string]int64)
	for result.Next(ctx) {
		record := result.Record()
		counts[getStringFromRecord(record, "label")] = getInt64FromRecord(record, "count")
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read node counts: %w", err)
	}
	return counts, nil
}

// CountRelationships returns relationship counts per type.
func (r *Repository) CountRelationships(ctx context.Context) (map[string]int64, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH ()-[rel]->()
		RETURN type(rel) AS type, count(*) AS count
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count relationships: %w", err)
	}

	counts := make(map[string]int64)
	for result.Next(ctx) {
		record := result.Record()
		counts[getStringFromRecord(record, "type")] = getInt64FromRecord(record, "count")
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read relationship counts: %w", err)
	}
	return counts, nil
}

// CreateConstraints adds an id uniqueness constraint for each label.
func (r *Repository) CreateConstraints(ctx context.Context, labels []string) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, label := range labels {
		query := fmt.Sprintf(
			"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			quoteIdentifier(constraintName(label)), quoteIdentifier(label),
		)
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("failed to create constraint for %s: %w", label, err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("failed to create constraint for %s: %w", label, err)
		}
		r.logger.Info("Constraint ensured", zap.String("label", label))
	}
	return nil
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: r.database,
	})
}

// write runs one statement in an explicit transaction. Managed transactions
// would retry transient failures on their own; retry policy belongs to the
// caller here, so failures surface immediately.
func (r *Repository) write(ctx context.Context, query string, params map[string]any) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return wrapStoreError(err)
	}

	result, err := tx.Run(ctx, query, params)
	if err == nil {
		_, err = result.Consume(ctx)
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return wrapStoreError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(err)
	}
	return nil
}
