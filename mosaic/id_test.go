package mosaic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakePair(t *testing.T) {
	rel := Entity(100)
	target := Entity(200)

	pair := MakePair(rel, target)
	require.True(t, pair.IsPair())
	require.Equal(t, rel, pair.First())
	require.Equal(t, target, pair.Second())

	require.False(t, rel.IsPair())
	require.False(t, target.IsPair())
}

func TestPairStripsGenerations(t *testing.T) {
	rel := Entity(100).withGeneration(3)
	target := Entity(200).withGeneration(7)

	pair := MakePair(rel, target)
	require.Equal(t, Entity(100), pair.First())
	require.Equal(t, Entity(200), pair.Second())
}

func TestGenerationRoundTrip(t *testing.T) {
	e := Entity(42).withGeneration(5)
	require.Equal(t, uint32(42), e.Index())
	require.Equal(t, uint16(5), e.Generation())
	require.Equal(t, Entity(42), e.StripGeneration())
}

func TestIsWildcard(t *testing.T) {
	require.True(t, Wildcard.IsWildcard())
	require.True(t, Any.IsWildcard())
	require.True(t, MakePair(Entity(100), Wildcard).IsWildcard())
	require.True(t, MakePair(Any, Entity(200)).IsWildcard())

	require.False(t, Entity(100).IsWildcard())
	require.False(t, MakePair(Entity(100), Entity(200)).IsWildcard())
}

func TestMatchesPattern(t *testing.T) {
	likes := Entity(100)
	apples := Entity(200)
	pears := Entity(300)

	pair := MakePair(likes, apples)

	t.Run("exact", func(t *testing.T) {
		require.True(t, MatchesPattern(pair, pair))
		require.False(t, MatchesPattern(pair, MakePair(likes, pears)))
	})

	t.Run("wildcard halves", func(t *testing.T) {
		require.True(t, MatchesPattern(pair, MakePair(likes, Wildcard)))
		require.True(t, MatchesPattern(pair, MakePair(Wildcard, apples)))
		require.True(t, MatchesPattern(pair, MakePair(Wildcard, Wildcard)))
		require.False(t, MatchesPattern(pair, MakePair(Wildcard, pears)))
	})

	t.Run("any behaves like wildcard per id", func(t *testing.T) {
		require.True(t, MatchesPattern(pair, MakePair(likes, Any)))
		require.True(t, MatchesPattern(pair, MakePair(Any, Any)))
	})

	t.Run("plain ids", func(t *testing.T) {
		require.True(t, MatchesPattern(likes, Wildcard))
		require.True(t, MatchesPattern(likes, likes))
		require.False(t, MatchesPattern(likes, apples))

		// a component pattern never matches a pair id
		require.False(t, MatchesPattern(pair, likes))
	})
}
