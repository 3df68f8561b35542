package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helplane/support-widget/internal/model"
)

func msgAt(id string, sender model.SenderType, content string, at time.Time) model.Message {
	return model.Message{
		ID:         id,
		ChatID:     "chat-1",
		SenderType: sender,
		Content:    content,
		Kind:       model.KindText,
		CreatedAt:  at,
	}
}

func TestReconcileReplacesOptimisticEchoInPlace(t *testing.T) {
	base := time.Now().UTC()
	echo := msgAt(model.OptimisticIDPrefix+"abc", model.SenderCustomer, "hello", base)
	msgs := []model.Message{
		msgAt("m1", model.SenderBot, "welcome", base.Add(-time.Minute)),
		echo,
	}

	authoritative := msgAt("m2", model.SenderCustomer, "hello", base.Add(time.Second))
	out := Reconcile(msgs, authoritative)

	require.Len(t, out, 2)
	assert.Equal(t, "m2", out[1].ID, "echo should be replaced at its display position")
	assert.False(t, out[1].IsOptimistic())
}

func TestReconcileDoesNotMatchAcrossSenders(t *testing.T) {
	base := time.Now().UTC()
	msgs := []model.Message{
		msgAt(model.OptimisticIDPrefix+"abc", model.SenderCustomer, "hello", base),
	}

	// Same content from the agent side is a distinct message, not a
	// confirmation of the customer echo.
	out := Reconcile(msgs, msgAt("m1", model.SenderAgent, "hello", base.Add(time.Second)))

	require.Len(t, out, 2)
	assert.True(t, out[0].IsOptimistic())
	assert.Equal(t, "m1", out[1].ID)
}

func TestReconcileInsertsByCreationTime(t *testing.T) {
	base := time.Now().UTC()
	msgs := []model.Message{
		msgAt("m1", model.SenderCustomer, "first", base),
		msgAt("m3", model.SenderBot, "third", base.Add(2*time.Second)),
	}

	// Delivered out of order relative to its timestamp.
	out := Reconcile(msgs, msgAt("m2", model.SenderAgent, "second", base.Add(time.Second)))

	require.Len(t, out, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestReconcileIgnoresRedelivery(t *testing.T) {
	base := time.Now().UTC()
	msgs := []model.Message{
		msgAt("m1", model.SenderCustomer, "hello", base),
	}

	out := Reconcile(msgs, msgAt("m1", model.SenderCustomer, "hello", base))

	assert.Len(t, out, 1)
}

func TestReconcileIsIdempotentAfterReplacement(t *testing.T) {
	base := time.Now().UTC()
	msgs := []model.Message{
		msgAt(model.OptimisticIDPrefix+"abc", model.SenderCustomer, "hello", base),
	}

	authoritative := msgAt("m1", model.SenderCustomer, "hello", base)
	out := Reconcile(msgs, authoritative)
	out = Reconcile(out, authoritative)

	require.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
}

func TestReconcileAppendsWhenNoEchoPending(t *testing.T) {
	base := time.Now().UTC()
	var msgs []model.Message

	out := Reconcile(msgs, msgAt("m1", model.SenderAgent, "hi there", base))

	require.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
}
