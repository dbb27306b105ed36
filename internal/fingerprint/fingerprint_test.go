package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Key
	}{
		{"single word", "Cement", "cement"},
		{"sorted tokens", "steel price", "price steel"},
		{"punctuation dropped", "Tell me about cement!!", "about cement me tell"},
		{"whitespace collapsed", "  steel \t\n price  ", "price steel"},
		{"symbols removed inside words", "don't re-order", "dont reorder"},
		{"digits kept", "500 bags cement", "500 bags cement"},
		{"empty", "", Blank},
		{"whitespace only", "   \t ", Blank},
		{"punctuation only", "?!...", Blank},
		{"devanagari kept", "सीमेंट कीमत", Key("कीमत सीमेंट")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.input))
		})
	}
}

func TestOf_OrderInsensitive(t *testing.T) {
	assert.Equal(t, Of("steel price"), Of("price steel"))
	assert.Equal(t, Of("What is the price of steel?"), Of("steel: price of the what is"))
	assert.NotEqual(t, Of("steel price"), Of("steel prices"))
}

func TestOf_Deterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, Key("copper for quote"), Of("Quote for COPPER"))
	}
}

func TestKey_IsBlank(t *testing.T) {
	assert.True(t, Of(" , ").IsBlank())
	assert.False(t, Of("hi").IsBlank())
}

func TestTokens_KeepsOrder(t *testing.T) {
	assert.Equal(t, []string{"tell", "me", "about", "cement"}, Tokens("Tell me, about cement."))
	assert.Empty(t, Tokens(""))
}
