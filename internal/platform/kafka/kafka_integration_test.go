//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"kvault/internal/platform/config"
	"kvault/pkg/domain"
	"kvault/pkg/platform/audit"
	"kvault/pkg/platform/audit/stream"
	"kvault/pkg/testutil/containers"
)

func TestAuditStreamRoundTrip(t *testing.T) {
	broker := containers.GetManager().GetRedpanda(t).Broker
	topic := "kvault.audit." + uuid.NewString()[:8]
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	producer, err := New(config.KafkaConfig{Brokers: []string{broker}, AuditTopic: topic})
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, EnsureTopic(ctx, producer, topic, 1, 1))
	require.NoError(t, EnsureTopic(ctx, producer, topic, 1, 1), "second call tolerates an existing topic")

	entry := audit.Entry{
		ID:         domain.AuditEntryID(uuid.New()),
		ActorID:    domain.UserID(uuid.New()),
		RegionID:   domain.RegionID(uuid.New()),
		Action:     audit.ActionArtefactCreated,
		TargetType: audit.TargetArtefact,
		TargetID:   uuid.NewString(),
		Details:    map[string]any{"title": "Runbook"},
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, stream.NewSink(producer, topic).Append(ctx, entry))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) == 0 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err(), "timed out waiting for the audit record")
		fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	}

	got := records[0]
	assert.Equal(t, entry.TargetID, string(got.Key))
	require.Len(t, got.Headers, 1)
	assert.Equal(t, "action", got.Headers[0].Key)
	assert.Equal(t, string(audit.ActionArtefactCreated), string(got.Headers[0].Value))

	var decoded audit.Entry
	require.NoError(t, json.Unmarshal(got.Value, &decoded))
	assert.Equal(t, entry.ID, decoded.ID)
	assert.Equal(t, entry.Action, decoded.Action)
	assert.Equal(t, "Runbook", decoded.Details["title"])
}
