package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitAssignsOrderedIDs(t *testing.T) {
	log := NewLog()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := log.Emit("created", at, map[string]string{"k": "v"})
	second := log.Emit("updated", at, nil)

	require.NotEmpty(t, first.ID)
	require.Less(t, first.ID, second.ID)

	evs := log.Events()
	require.Len(t, evs, 2)
	require.Equal(t, "created", evs[0].Type)
	require.Equal(t, "v", evs[0].Attributes["k"])
}

func TestEventsByType(t *testing.T) {
	log := NewLog()
	at := time.Now()

	log.Emit("created", at, nil)
	log.Emit("updated", at, nil)
	log.Emit("created", at, nil)

	require.Len(t, log.EventsByType("created"), 2)
	require.Len(t, log.EventsByType("updated"), 1)
	require.Empty(t, log.EventsByType("deleted"))
}

func TestEventsReturnsCopy(t *testing.T) {
	log := NewLog()
	log.Emit("created", time.Now(), nil)

	evs := log.Events()
	evs[0].Type = "mutated"
	require.Equal(t, "created", log.Events()[0].Type)
}
