package voice

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/procurevoice/internal/fingerprint"
)

func TestNewContext(t *testing.T) {
	c := NewContext()
	assert.Equal(t, RoleUnknown, c.Role)
	assert.Equal(t, SentimentNeutral, c.Sentiment)
	assert.Empty(t, c.Topics)
	assert.Empty(t, c.Recent)
	assert.Equal(t, fingerprint.Blank, c.LastFingerprint())
}

func TestApply_EmptyPatchIsNoOp(t *testing.T) {
	c := Apply(NewContext(), Patch{Topics: []string{"steel"}, Fingerprint: "steel"})
	next := Apply(c, Patch{})
	assert.Equal(t, c, next)
	assert.True(t, Patch{}.IsEmpty())
	assert.True(t, Patch{Role: RoleUnknown}.IsEmpty())
}

func TestApply_RoleIsSticky(t *testing.T) {
	c := Apply(NewContext(), Patch{Role: RoleBuyer})
	assert.Equal(t, RoleBuyer, c.Role)

	c = Apply(c, Patch{Role: RoleUnknown})
	assert.Equal(t, RoleBuyer, c.Role)

	c = Apply(c, Patch{Role: RoleSupplier})
	assert.Equal(t, RoleBuyer, c.Role, "a later contradicting signal must not flip the role")
}

func TestApply_TopicsUnionDeduplicated(t *testing.T) {
	c := Apply(NewContext(), Patch{Topics: []string{"cement", "Steel"}})
	c = Apply(c, Patch{Topics: []string{"steel", "copper", " cement "}})

	assert.Equal(t, []string{"cement", "steel", "copper"}, c.Topics)
	assert.True(t, c.HasTopic("Copper"))
	assert.False(t, c.HasTopic("timber"))
}

func TestApply_TopicsNeverShrink(t *testing.T) {
	materials := []string{"cement", "steel", "copper", "timber", "glass", "sand"}
	rng := rand.New(rand.NewSource(7))

	c := NewContext()
	prev := 0
	for i := 0; i < 200; i++ {
		var p Patch
		for j := rng.Intn(3); j > 0; j-- {
			p.Topics = append(p.Topics, materials[rng.Intn(len(materials))])
		}
		c = Apply(c, p)
		require.GreaterOrEqual(t, len(c.Topics), prev)
		prev = len(c.Topics)
	}
}

func TestApply_RecentBoundedFIFO(t *testing.T) {
	c := NewContext()
	for i := 0; i < 12; i++ {
		c = Apply(c, Patch{Fingerprint: fingerprint.Key(fmt.Sprintf("q%d", i))})
		require.LessOrEqual(t, len(c.Recent), RecentCapacity)
	}

	assert.Equal(t, []fingerprint.Key{"q7", "q8", "q9", "q10", "q11"}, c.Recent)
	assert.Equal(t, fingerprint.Key("q11"), c.LastFingerprint())
}

func TestApply_BlankFingerprintIgnored(t *testing.T) {
	c := Apply(NewContext(), Patch{Fingerprint: fingerprint.Blank})
	assert.Empty(t, c.Recent)
}

func TestApply_Sentiment(t *testing.T) {
	c := Apply(NewContext(), Patch{Sentiment: SentimentNegative})
	assert.Equal(t, SentimentNegative, c.Sentiment)

	c = Apply(c, Patch{Topics: []string{"steel"}})
	assert.Equal(t, SentimentNegative, c.Sentiment, "no signal keeps the previous sentiment")

	c = Apply(c, Patch{Sentiment: SentimentPositive})
	assert.Equal(t, SentimentPositive, c.Sentiment)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	c := Apply(NewContext(), Patch{Topics: []string{"cement"}, Fingerprint: "cement"})
	before := c.Clone()

	_ = Apply(c, Patch{Topics: []string{"steel"}, Fingerprint: "steel", Role: RoleSupplier})

	assert.Equal(t, before, c)
}

func TestClone_Independent(t *testing.T) {
	c := Apply(NewContext(), Patch{Topics: []string{"cement"}})
	cp := c.Clone()
	cp.Topics[0] = "steel"
	assert.Equal(t, "cement", c.Topics[0])
}
