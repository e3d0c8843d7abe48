package scopelog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientUpdaterLogOnly(t *testing.T) {
	cu, err := StartClientUpdater(0)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		cu.Publish(ClientUpdate{Tag: "BATCH", State: BatchMessage{Batches: i}})
	}
	cu.Publish(ClientUpdate{Tag: "BAD", State: func() {}}) // not JSON-encodable; logged and skipped
	cu.Close()
	cu.Close()
	cu.Publish(ClientUpdate{Tag: "LATE"}) // dropped, must not panic
}

func TestClientUpdaterPublishes(t *testing.T) {
	const port = 33519
	cu, err := StartClientUpdater(port)
	require.NoError(t, err)
	defer cu.Close()

	sub, err := zmq4.NewSocket(zmq4.SUB)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Connect("tcp://localhost:33519"))
	require.NoError(t, sub.SetSubscribe("RUNSTATE"))
	require.NoError(t, sub.SetRcvtimeo(20*time.Millisecond))

	// PUB drops messages until the subscription arrives, so keep publishing.
	want := RunStateMessage{RunID: "R9", State: "Running", Channels: []string{"Dev1/ai0"}}
	var parts []string
	for i := 0; i < 250 && parts == nil; i++ {
		cu.Publish(ClientUpdate{Tag: "BATCH", State: BatchMessage{RunID: "R9"}})
		cu.Publish(ClientUpdate{Tag: "RUNSTATE", State: want})
		parts, _ = sub.RecvMessage(0)
	}
	require.Len(t, parts, 2, "no RUNSTATE message received")
	assert.Equal(t, "RUNSTATE", parts[0])
	var got RunStateMessage
	require.NoError(t, json.Unmarshal([]byte(parts[1]), &got))
	assert.Equal(t, want, got)
}
