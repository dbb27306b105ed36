package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Tag
	}{
		{"en-IN", English},
		{"EN_in", English},
		{"en", English},
		{"hi-IN", Hindi},
		{" hi ", Hindi},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unsupported(t *testing.T) {
	_, err := Parse("fr-FR")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("hi_IN", "hi-in"))
	assert.False(t, Equal("hi-IN", "hi"))
}

func TestText_EveryPhraseInEveryLanguage(t *testing.T) {
	for _, tag := range Supported {
		for p := Greeting; p <= NoSpeech; p++ {
			assert.NotEmpty(t, Text(tag, p), "tag %s phrase %d", tag, p)
		}
	}
	assert.NotEqual(t, Text(English, SwitchConfirmation), Text(Hindi, SwitchConfirmation))
}

func TestText_UnknownTagFallsBack(t *testing.T) {
	assert.Equal(t, Text(English, Greeting), Text(Tag("fr-FR"), Greeting))
}
