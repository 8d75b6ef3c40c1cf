package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActor(t *testing.T) {
	assert.Equal(t, DefaultActor, Actor(context.Background()))
	assert.Equal(t, "alice", Actor(WithActor(context.Background(), " alice ")))
	assert.Equal(t, DefaultActor, Actor(WithActor(context.Background(), "  ")))
}

func TestDefault(t *testing.T) {
	var nilCtx context.Context
	assert.NotNil(t, Default(nilCtx))
	assert.Equal(t, DefaultActor, Actor(nilCtx))

	ctx := WithActor(context.Background(), "bob")
	assert.Equal(t, ctx, Default(ctx))
}
