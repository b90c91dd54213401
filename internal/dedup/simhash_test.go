package dedup_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/dedup"
)

const sampleBody = `The city council voted on Tuesday to approve the new transit plan
after months of public consultation. Officials said construction would begin
in the spring and continue for at least three years. Residents expressed
mixed feelings about the disruption the project will bring to downtown.`

func TestExactHashDeterministic(t *testing.T) {
	t.Parallel()

	a := dedup.ExactHash(sampleBody)
	b := dedup.ExactHash(sampleBody)
	require.Equal(t, a, b)
	require.Len(t, a, 64) // hex sha-256

	require.NotEqual(t, a, dedup.ExactHash(sampleBody+" extra"))
}

func TestSimhashNearDuplicatesAreClose(t *testing.T) {
	t.Parallel()

	original := dedup.Simhash(sampleBody)

	// Light edits: reordered clause, one substitution.
	edited := strings.Replace(sampleBody, "mixed feelings", "strong feelings", 1)
	near := dedup.Simhash(edited)

	unrelated := dedup.Simhash(`Quarterly earnings beat expectations as the
company reported record revenue driven by cloud subscriptions. Analysts
raised their price targets following the announcement and shares climbed
in after hours trading on heavy volume across the sector.`)

	require.Equal(t, 0, dedup.HammingDistance(original, dedup.Simhash(sampleBody)))
	require.Less(t, dedup.HammingDistance(original, near), dedup.HammingDistance(original, unrelated))
}

func TestHammingDistance(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, dedup.HammingDistance(0xff, 0xff))
	require.Equal(t, 8, dedup.HammingDistance(0xff, 0x00))
	require.Equal(t, 1, dedup.HammingDistance(0b1010, 0b1011))
}
