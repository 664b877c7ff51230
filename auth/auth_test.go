package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/channel-ledger/config"
)

var testCfg = config.JWTConfig{Secret: "test-secret", Issuer: "till", TTL: time.Hour}

func TestMintAndParse(t *testing.T) {
	token, err := Mint(testCfg, time.Now(), Actor{ID: "cashier-7", OwnerID: "store-1"})
	require.NoError(t, err)

	actor, err := Parse(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: "cashier-7", OwnerID: "store-1"}, actor)
}

func TestParse_ActorDefaultsToOwner(t *testing.T) {
	token, err := Mint(testCfg, time.Now(), Actor{OwnerID: "store-1"})
	require.NoError(t, err)

	actor, err := Parse(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, "store-1", actor.ID)
}

func TestParse_Rejects(t *testing.T) {
	valid, err := Mint(testCfg, time.Now(), Actor{OwnerID: "store-1"})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := testCfg
		other.Secret = "other"
		_, err := Parse(other, valid)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := testCfg
		other.Issuer = "someone-else"
		_, err := Parse(other, valid)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		old, err := Mint(testCfg, time.Now().Add(-2*time.Hour), Actor{OwnerID: "store-1"})
		require.NoError(t, err)
		_, err = Parse(testCfg, old)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Parse(testCfg, "not-a-token")
		assert.Error(t, err)
	})
}

func TestMint_RequiresOwner(t *testing.T) {
	_, err := Mint(testCfg, time.Now(), Actor{ID: "cashier-7"})
	assert.ErrorIs(t, err, ErrMissingOwner)
}

func TestActorContext(t *testing.T) {
	assert.Equal(t, Actor{}, ActorFrom(context.Background()))

	ctx := WithActor(context.Background(), Actor{ID: "a", OwnerID: "o"})
	assert.Equal(t, "o", ActorFrom(ctx).OwnerID)
}
