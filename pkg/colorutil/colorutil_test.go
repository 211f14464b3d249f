package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNRGBA(t *testing.T) {
	assert.Equal(t, color.NRGBA{R: 255, A: 204}, NRGBA(255, 0, 0, 0.8))
	assert.Equal(t, color.NRGBA{R: 255, A: 51}, NRGBA(255, 0, 0, 0.2))
	assert.Equal(t, uint8(0), NRGBA(1, 2, 3, -1).A)
	assert.Equal(t, uint8(255), NRGBA(1, 2, 3, 7).A)
}

func TestWithAlpha(t *testing.T) {
	c := WithAlpha(color.RGBA{R: 0, G: 128, B: 255, A: 255}, 0.5)
	assert.Equal(t, color.NRGBA{R: 0, G: 128, B: 255, A: 128}, c)
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#ff0000")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, c)

	c, err = ParseHex("00ff0080")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{G: 255, A: 128}, c)

	_, err = ParseHex("#abc")
	assert.Error(t, err)
	_, err = ParseHex("#zzzzzz")
	assert.Error(t, err)
}
