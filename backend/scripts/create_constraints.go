package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"cdr-graph/backend/internal/graph"
	"cdr-graph/backend/pkg/config"
	"cdr-graph/backend/pkg/logger"
)

const migrationVersion = "telecom_constraints_v1"

func main() {
	force := flag.Bool("force", false, "Recreate constraints even if already applied")
	reset := flag.Bool("reset", false, "Delete every telecom node before creating constraints")
	skipConfirm := flag.Bool("y", false, "Skip the reset confirmation prompt")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Neo4j constraint migration...")

	// Connect to Neo4j
	ctx := context.Background()
	driver, err := graph.Connect(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())

	if *reset {
		if cfg.IsProduction() {
			log.Fatal("Refusing to reset a production database")
		}
		if !*skipConfirm {
			log.Warn("This will DELETE every telecom node from Neo4j and cannot be undone.")
			fmt.Print("Are you sure you want to continue? (yes/no): ")
			var response string
			fmt.Scanln(&response)
			if response != "yes" && response != "y" {
				log.Info("Aborted.")
				os.Exit(0)
			}
		}
		if err := deleteTelecomNodes(ctx, driver, cfg.Neo4jDatabase, log); err != nil {
			log.Fatal("Reset failed", zap.Error(err))
		}
	}

	// Check if migration already applied
	if !*force && !*reset {
		applied, err := checkMigrationApplied(ctx, driver, cfg.Neo4jDatabase)
		if err != nil {
			log.Fatal("Failed to check migration status", zap.Error(err))
		}
		if applied {
			log.Info("Constraints already applied. Use -force to reapply.")
			os.Exit(0)
		}
	}

	repo := graph.NewRepository(driver, cfg.Neo4jDatabase)
	if err := repo.CreateConstraints(ctx, graph.Labels); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	// Mark migration as applied
	if err := markMigrationApplied(ctx, driver, cfg.Neo4jDatabase); err != nil {
		log.Warn("Failed to mark migration as applied", zap.Error(err))
	}

	log.Info("Migration completed successfully!", zap.Int("labels", len(graph.Labels)))
}

func checkMigrationApplied(ctx context.Context, driver neo4j.DriverWithContext, database string) (bool, error) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: database})
	defer session.Close(ctx)

	query := `
		MATCH (m:Migration {version: $version})
		RETURN m.applied_at as applied_at
	`

	result, err := session.Run(ctx, query, map[string]any{"version": migrationVersion})
	if err != nil {
		return false, err
	}

	return result.Next(ctx), nil
}

func markMigrationApplied(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	query := `
		MERGE (m:Migration {version: $version})
		SET m.applied_at = datetime(),
		    m.description = 'Unique id constraints for telecom node labels'
	`

	_, err := session.Run(ctx, query, map[string]any{"version": migrationVersion})
	return err
}

// deleteTelecomNodes removes nodes label by label in bounded transactions.
func deleteTelecomNodes(ctx context.Context, driver neo4j.DriverWithContext, database string, log *zap.Logger) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	for _, label := range graph.Labels {
		query := fmt.Sprintf("MATCH (n:`%s`) CALL { WITH n DETACH DELETE n } IN TRANSACTIONS OF 10000 ROWS", label)
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("failed to delete %s nodes: %w", label, err)
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete %s nodes: %w", label, err)
		}
		log.Info("Deleted nodes",
			zap.String("label", label),
			zap.Int("count", summary.Counters().NodesDeleted()),
		)
	}
	_, err := session.Run(ctx, "MATCH (m:Migration {version: $version}) DELETE m", map[string]any{"version": migrationVersion})
	return err
}
