package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore("file:test.db?mode=memory&cache=shared")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	now := time.Now()
	recs := []LogRecord{
		{Timestamp: now, FaultID: "f1", Outcome: OutcomeDispatched, VehicleSelected: "v1",
			Candidates: []Candidate{{VehicleID: "v1", Score: 150}, {VehicleID: "v2", Score: 120}}},
		{Timestamp: now.Add(time.Second), FaultID: "f2", Outcome: OutcomeNoVehicle},
	}
	for _, r := range recs {
		require.NoError(t, store.Append(context.Background(), r))
	}
	out, err := store.Query(context.Background(), LogQuery{})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = store.Query(context.Background(), LogQuery{VehicleID: "v2"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "f1", out[0].FaultID)

	out, err = store.Query(context.Background(), LogQuery{FaultID: "f2"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, OutcomeNoVehicle, out[0].Outcome)

	out, err = store.Query(context.Background(), LogQuery{Start: now.Add(500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	out, err = store.Query(context.Background(), LogQuery{Outcome: OutcomeDispatched})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "f1", out[0].FaultID)

	out, err = store.Query(context.Background(), LogQuery{VehicleID: "v"})
	require.NoError(t, err)
	assert.Empty(t, out)
}
