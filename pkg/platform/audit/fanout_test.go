package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvault/pkg/domain"
	audit "kvault/pkg/platform/audit"
	"kvault/pkg/platform/audit/store/memory"
)

type appenderFunc func(context.Context, audit.Entry) error

func (f appenderFunc) Append(ctx context.Context, e audit.Entry) error { return f(ctx, e) }

func TestFanout(t *testing.T) {
	ctx := context.Background()
	actor := domain.UserID(uuid.New())

	t.Run("sink failure does not fail the write", func(t *testing.T) {
		primary := memory.NewInMemoryStore()
		f := audit.NewFanout(primary, nil, appenderFunc(func(context.Context, audit.Entry) error {
			return errors.New("broker down")
		}))

		require.NoError(t, f.Append(ctx, audit.Entry{ActorID: actor, Action: audit.ActionArtefactCreated}))
		entries, err := f.List(ctx, audit.Query{ActorID: &actor})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("sinks receive every entry", func(t *testing.T) {
		var mirrored []audit.Action
		f := audit.NewFanout(memory.NewInMemoryStore(), nil, appenderFunc(func(_ context.Context, e audit.Entry) error {
			mirrored = append(mirrored, e.Action)
			return nil
		}))
		require.NoError(t, f.Append(ctx, audit.Entry{Action: audit.ActionArtefactArchived}))
		assert.Equal(t, []audit.Action{audit.ActionArtefactArchived}, mirrored)
	})
}

func TestQuery_EffectiveLimit(t *testing.T) {
	assert.Equal(t, audit.MaxListLimit, audit.Query{}.EffectiveLimit())
	assert.Equal(t, audit.MaxListLimit, audit.Query{Limit: 5000}.EffectiveLimit())
	assert.Equal(t, 10, audit.Query{Limit: 10}.EffectiveLimit())
}
