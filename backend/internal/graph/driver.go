package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"cdr-graph/backend/pkg/config"
	apperrors "cdr-graph/backend/pkg/errors"
)

// NewDriver builds a Neo4j driver with the configured pool size and connect
// timeouts. It does not contact the server.
func NewDriver(cfg *config.Config) (neo4j.DriverWithContext, error) {
	return neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		func(c *neo4j.Config) {
			if cfg.Neo4jMaxPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.Neo4jMaxPoolSize
			}
			if cfg.Neo4jConnectTimeout > 0 {
				c.SocketConnectTimeout = cfg.Neo4jConnectTimeout
				c.ConnectionAcquisitionTimeout = cfg.Neo4jConnectTimeout
			}
		},
	)
}

// Connect builds a driver and verifies connectivity. The driver is closed
// again when the server cannot be reached.
func Connect(ctx context.Context, cfg *config.Config) (neo4j.DriverWithContext, error) {
	driver, err := NewDriver(cfg)
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(cfg.Neo4jURI, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.Background())
		return nil, apperrors.NewGraphConnectionFailed(cfg.Neo4jURI, err)
	}
	return driver, nil
}
