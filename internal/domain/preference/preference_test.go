package preference

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19radio/internal/domain/content"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{input: "high", want: High},
		{input: "HIGH", want: High},
		{input: "+", want: High},
		{input: "low", want: Low},
		{input: "-1", want: Low},
		{input: "medium", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidLevel))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPreferences_SetRespectsLimit(t *testing.T) {
	p := New("u1")

	_, err := p.Set("Rock", High, 2)
	require.NoError(t, err)
	_, err = p.Set("jazz", Low, 2)
	require.NoError(t, err)

	_, err = p.Set("metal", High, 2)
	assert.True(t, errors.Is(err, ErrLimitReached))
	assert.Len(t, p.Levels, 2)

	// Overwriting an existing keyword is allowed at the limit.
	kw, err := p.Set("ROCK", Low, 2)
	require.NoError(t, err)
	assert.Equal(t, "rock", kw)
	level, ok := p.Level("rock")
	assert.True(t, ok)
	assert.Equal(t, Low, level)
}

func TestPreferences_SetRejectsMalformedKeyword(t *testing.T) {
	p := New("u1")

	_, err := p.Set("   ", High, 5)
	assert.True(t, errors.Is(err, content.ErrInvalidKeyword))
	assert.Empty(t, p.Levels)
}

func TestPreferences_Clear(t *testing.T) {
	p := New("u1")
	_, err := p.Set("rock", High, 5)
	require.NoError(t, err)

	assert.True(t, p.Clear(" Rock "))
	assert.False(t, p.Clear("rock"))
	assert.Empty(t, p.Keywords())
}

func TestPreferences_NilLevel(t *testing.T) {
	var p *Preferences
	_, ok := p.Level("rock")
	assert.False(t, ok)
}
