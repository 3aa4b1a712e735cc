package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"elevation_service/internal/domain/model"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectFor(t *testing.T) {
	s, err := SubjectFor(model.EventUnitCompleted)
	require.NoError(t, err)
	assert.Equal(t, "elevation.units.completed", s)

	s, err = SubjectFor(model.EventUnitExhausted)
	require.NoError(t, err)
	assert.Equal(t, "elevation.units.failed", s)

	_, err = SubjectFor("paused")
	assert.Error(t, err)
}

func TestPublishWithoutConnection(t *testing.T) {
	err := NewNATSPublisher(nil).Publish(context.Background(), model.UnitEvent{Type: model.EventUnitCompleted, UnitID: "a"})
	assert.ErrorContains(t, err, "not connected")

	assert.NoError(t, NopPublisher{}.Publish(context.Background(), model.UnitEvent{}))
}

func TestPublishDeliversUnitEvents(t *testing.T) {
	srv := natstest.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	completed, err := sub.SubscribeSync(SubjectUnitCompleted)
	require.NoError(t, err)
	failed, err := sub.SubscribeSync(SubjectUnitFailed)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, model.UnitEvent{Type: model.EventUnitCompleted, UnitID: "grid_a", Kind: model.KindGrid, Priority: 2, At: at}))
	require.NoError(t, pub.Publish(ctx, model.UnitEvent{Type: model.EventUnitExhausted, UnitID: "road_7", Kind: model.KindRoad, ErrorCount: 5, LastError: "HTTP 503", At: at}))

	msg, err := completed.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var ev model.UnitEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "grid_a", ev.UnitID)
	assert.Equal(t, model.EventUnitCompleted, ev.Type)
	assert.True(t, ev.At.Equal(at))

	msg, err = failed.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "road_7", ev.UnitID)
	assert.Equal(t, 5, ev.ErrorCount)
	assert.Equal(t, "HTTP 503", ev.LastError)
}

func TestCloseDrainsConnection(t *testing.T) {
	srv := natstest.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	pub, err := Connect(srv.ClientURL())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.NumClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, pub.Close())
	assert.Eventually(t, func() bool { return srv.NumClients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
