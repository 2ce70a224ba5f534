package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "01HZX")
	ctx, id := EnsureCorrelationID(ctx)
	assert.Equal(t, "01HZX", id)
	assert.Equal(t, "01HZX", CorrelationIDFromContext(ctx))
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.Len(t, id, 26)
	assert.Equal(t, id, CorrelationIDFromContext(ctx))
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), " user ", "42")
	typ, id := ActorFromContext(ctx)
	assert.Equal(t, "user", typ)
	assert.Equal(t, "42", id)

	typ, id = ActorFromContext(context.Background())
	assert.Empty(t, typ)
	assert.Empty(t, id)
}
