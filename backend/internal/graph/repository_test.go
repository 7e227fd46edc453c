package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// TestRepository requires a running Neo4j instance
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables
func TestRepository_WriteBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver, "")
	suffix := time.Now().Format("20060102150405.000000")
	a, b := "test-a-"+suffix, "test-b-"+suffix

	// Clean up
	defer func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, "MATCH (p:Party) WHERE p.id IN $ids DETACH DELETE p", map[string]interface{}{"ids": []string{a, b}})
	}()

	acc := NewAccumulator(zap.NewNop())
	nodes := []NodeRef{{Label: LabelParty, ID: a}, {Label: LabelParty, ID: b}}
	acc.AddRow(0, nodes, []EdgeDescriptor{{
		FromLabel: LabelParty, FromID: a, RelType: RelCall, ToLabel: LabelParty, ToID: b,
		Properties: map[string]string{"duration": "10"},
	}})
	acc.AddRow(1, nodes, []EdgeDescriptor{{
		FromLabel: LabelParty, FromID: a, RelType: RelCall, ToLabel: LabelParty, ToID: b,
		Properties: map[string]string{"duration": "20"},
	}})

	w := NewWriter(repo, WriterOptions{Timeout: 10 * time.Second, Logger: zap.NewNop()})
	if _, err := w.Write(ctx, acc.Batch()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Replaying the batch must not duplicate anything
	if _, err := w.Write(ctx, acc.Batch()); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	result, err := session.Run(ctx, `
		MATCH (:Party {id: $a})-[r:CALL]->(:Party {id: $b})
		RETURN count(r) AS count, collect(r.duration)[0] AS duration
	`, map[string]interface{}{"a": a, "b": b})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		t.Fatalf("single failed: %v", err)
	}

	if got := getInt64FromRecord(record, "count"); got != 1 {
		t.Errorf("Expected 1 CALL relationship, got %d", got)
	}
	if got := getStringFromRecord(record, "duration"); got != "20" {
		t.Errorf("Expected duration '20', got '%s'", got)
	}
}

func TestRepository_CountNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver, "")
	id := "test-imei-" + time.Now().Format("20060102150405.000000")
	defer func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, "MATCH (n:IMEI {id: $id}) DETACH DELETE n", map[string]interface{}{"id": id})
	}()

	if err := repo.MergeNodes(ctx, LabelIMEI, []string{id, id}); err != nil {
		t.Fatalf("MergeNodes failed: %v", err)
	}
	counts, err := repo.CountNodes(ctx)
	if err != nil {
		t.Fatalf("CountNodes failed: %v", err)
	}
	if counts[LabelIMEI] < 1 {
		t.Errorf("Expected at least one IMEI node, got %d", counts[LabelIMEI])
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := map[string]string{
		"Party":     "`Party`",
		"USED_IMEI": "`USED_IMEI`",
		"a`b":       "`a``b`",
	}
	for in, want := range tests {
		if got := quoteIdentifier(in); got != want {
			t.Errorf("quoteIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := envOr("NEO4J_URI", "bolt://localhost:7687")
	user := envOr("NEO4J_USER", "neo4j")
	password := envOr("NEO4J_PASSWORD", "password")

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	return driver, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
