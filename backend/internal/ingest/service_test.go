package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cdr-graph/backend/internal/graph"
	"cdr-graph/backend/internal/metrics"
	"cdr-graph/backend/internal/schema"
	"cdr-graph/backend/internal/tabular"
	apperrors "cdr-graph/backend/pkg/errors"
)

const cdrHeader = "A PARTY,B PARTY,CALL TYPE,IMEI A,IMSI A,FIRST CELL ID A,LAST CELL ID A,DATE,TIME,DURATION\n"

func readCSV(t *testing.T, body string) *tabular.Table {
	t.Helper()
	table, err := tabular.ReadCSV("upload.csv", strings.NewReader(body))
	require.NoError(t, err)
	return table
}

func newMemoryService(store *graph.MemoryStore, workers int, reg *metrics.Registry) *Service {
	w := graph.NewWriter(store, graph.WriterOptions{Timeout: time.Second, Logger: zap.NewNop()})
	return NewService(w, Options{Workers: workers, Metrics: reg, Logger: zap.NewNop()})
}

type fakeWriter struct {
	calls int
	err   error
}

func (f *fakeWriter) Write(ctx context.Context, batch *graph.Batch) (*graph.WriteReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &graph.WriteReport{}, nil
}

func TestIngest_CDRLastWriteWins(t *testing.T) {
	store := graph.NewMemoryStore()
	svc := newMemoryService(store, 2, nil)

	table := readCSV(t, cdrHeader+
		"A,B,OUT,111,999,T1,T2,2024-01-01,10:00,10\n"+
		"A,B,OUT,111,999,T1,T2,2024-01-01,11:00,20\n")

	result, err := svc.Ingest(context.Background(), table)
	require.NoError(t, err)

	assert.Equal(t, schema.CDR, result.FileType)
	assert.Equal(t, 2, result.RecordCount)
	assert.Equal(t, 6, result.NodeCount)
	assert.Equal(t, 10, result.EdgeCount)
	assert.Equal(t, map[string]int{"Party": 2, "IMEI": 1, "IMSI": 1, "Tower": 2}, result.NodesByLabel)
	assert.Equal(t, 2, result.EdgesByGroup["Party-CALL->Party"])
	assert.Empty(t, result.Warnings)
	assert.NotNil(t, result.Warnings)

	props, ok := store.Relationship(graph.EdgeKey{FromLabel: graph.LabelParty, RelType: graph.RelCall, ToLabel: graph.LabelParty}, "A", "B")
	require.True(t, ok)
	assert.Equal(t, "20", props["duration"])
	assert.Equal(t, "11:00", props["time"])
	assert.Equal(t, []string{"A", "B"}, store.NodeIDs(graph.LabelParty))
}

func TestIngest_UnknownFileType(t *testing.T) {
	writer := &fakeWriter{}
	reg := metrics.NewRegistry()
	svc := NewService(writer, Options{Metrics: reg, Logger: zap.NewNop()})

	_, err := svc.Ingest(context.Background(), readCSV(t, "name,age\nbob,3\n"))
	require.Error(t, err)

	var unknown *apperrors.ErrUnrecognizedFileType
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"NAME", "AGE"}, unknown.Columns)
	assert.Zero(t, writer.calls)
}

func TestIngest_IPDR(t *testing.T) {
	store := graph.NewMemoryStore()
	svc := newMemoryService(store, 1, nil)

	table := readCSV(t, "LANDLINE/MSISDN/MDN/LEASED CIRCUIT ID FOR INTERNET ACCESS,SOURCE IP ADDRESS,TRANSLATED IP ADDRESS,DESTINATION IP ADDRESS,SESSION DURATION\n"+
		"9000,10.0.0.1,1.2.3.4,8.8.8.8,60\n")

	result, err := svc.Ingest(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, schema.IPDR, result.FileType)
	assert.True(t, store.HasNode(graph.LabelParty, "9000"))

	props, ok := store.Relationship(graph.EdgeKey{FromLabel: graph.LabelPublicIP, RelType: graph.RelConnectedTo, ToLabel: graph.LabelDestinationIP}, "1.2.3.4", "8.8.8.8")
	require.True(t, ok)
	assert.Equal(t, "60", props["duration"])
}

func TestIngest_HeaderOnly(t *testing.T) {
	writer := &fakeWriter{}
	svc := NewService(writer, Options{Logger: zap.NewNop()})

	result, err := svc.Ingest(context.Background(), readCSV(t, cdrHeader))
	require.NoError(t, err)
	assert.Equal(t, schema.CDR, result.FileType)
	assert.Zero(t, result.RecordCount)
	assert.Zero(t, result.NodeCount)
	assert.Equal(t, 1, writer.calls)
}

func TestIngest_WriteFailure(t *testing.T) {
	reg := metrics.NewRegistry()
	writer := &fakeWriter{err: apperrors.NewGraphWriteFailed(graph.PhaseEdges, "Party-CALL->Party", true, true, errors.New("boom"))}
	svc := NewService(writer, Options{Metrics: reg, Logger: zap.NewNop()})

	_, err := svc.Ingest(context.Background(), readCSV(t, cdrHeader+"A,B,OUT,1,2,T1,T2,d,t,5\n"))
	require.Error(t, err)

	var writeErr *apperrors.ErrGraphWriteFailed
	require.ErrorAs(t, err, &writeErr)
	assert.True(t, writeErr.Partial)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestDryRun_DoesNotWrite(t *testing.T) {
	writer := &fakeWriter{}
	svc := NewService(writer, Options{Logger: zap.NewNop()})

	result, err := svc.DryRun(context.Background(), readCSV(t, cdrHeader+"A,B,OUT,1,2,T1,T2,d,t,5\n"))
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 5, result.EdgeCount)
	assert.Zero(t, writer.calls)
}

func TestPlan_ParallelMatchesSequential(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(cdrHeader)
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&sb, "P%d,P%d,OUT,IMEI%d,IMSI%d,T%d,T%d,2024-01-01,00:00,%d\n",
			i%37, (i+1)%41, i%5, i%7, i%11, i%13, i)
	}
	table := readCSV(t, sb.String())

	sequential, err := NewService(&fakeWriter{}, Options{Workers: 1, Logger: zap.NewNop()}).Plan(context.Background(), table)
	require.NoError(t, err)
	parallel, err := NewService(&fakeWriter{}, Options{Workers: 8, Logger: zap.NewNop()}).Plan(context.Background(), table)
	require.NoError(t, err)

	assert.Equal(t, sequential.Batch, parallel.Batch)
	assert.Equal(t, 2000, parallel.RecordCount)
}

func TestPlan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewService(&fakeWriter{}, Options{Logger: zap.NewNop()}).Plan(ctx, readCSV(t, cdrHeader+"A,B,OUT,1,2,T1,T2,d,t,5\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunkBounds(t *testing.T) {
	assert.Nil(t, chunkBounds(0, 4))
	assert.Equal(t, [][2]int{{0, 10}}, chunkBounds(10, 4))
	assert.Equal(t, [][2]int{{0, 256}, {256, 512}, {512, 600}}, chunkBounds(600, 8))
	assert.Equal(t, [][2]int{{0, 500}, {500, 1000}}, chunkBounds(1000, 2))
}
