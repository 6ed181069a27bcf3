package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeTRSIdentity(t *testing.T) {
	m := ComposeTRS([3]float32{}, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1})
	assert.True(t, IsIdentity(m))
	assert.True(t, IsTranslationOnly(m))
}

func TestComposeTRSTranslationAndScale(t *testing.T) {
	m := ComposeTRS([3]float32{1, 2, 3}, [4]float32{0, 0, 0, 1}, [3]float32{2, 2, 2})
	assert.Equal(t, [3]float32{1, 2, 3}, MatrixTranslation(m))
	assert.Equal(t, float32(2), m[0])
	assert.Equal(t, float32(2), m[5])
	assert.False(t, IsTranslationOnly(m))
}

func TestComposeTRSRotation(t *testing.T) {
	// 90 degrees about z maps +x onto +y
	s := float32(math.Sin(math.Pi / 4))
	m := ComposeTRS([3]float32{}, [4]float32{0, 0, s, s}, [3]float32{1, 1, 1})
	assert.InDelta(t, 0, m[0], 1e-6)
	assert.InDelta(t, 1, m[1], 1e-6)
	assert.InDelta(t, -1, m[4], 1e-6)
	assert.False(t, IsIdentity(m))
}

func TestTranslationMatrix(t *testing.T) {
	m := TranslationMatrix(4, 5, 6)
	assert.True(t, IsTranslationOnly(m))
	assert.False(t, IsIdentity(m))

	var out [16]float32
	n := TranslationMatrix(1, 1, 1)
	Mul4(out[:], m[:], n[:])
	assert.Equal(t, [3]float32{5, 6, 7}, MatrixTranslation(out))
}

func TestCoalesceAndPtr(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 0, Coalesce(0, 0))
	p := Ptr(3)
	assert.Equal(t, 3, *p)
}

func TestAlignTo(t *testing.T) {
	assert.Equal(t, 0, AlignTo(0, 4))
	assert.Equal(t, 4, AlignTo(1, 4))
	assert.Equal(t, 8, AlignTo(8, 4))
	assert.Equal(t, 12, AlignTo(9, 4))
}

func TestTextureContentHash(t *testing.T) {
	a := &ImportedTexture{Name: "a", Data: []byte{1, 2, 3}, MimeType: "image/png"}
	b := &ImportedTexture{Name: "b", Data: []byte{1, 2, 3}, MimeType: "image/png"}
	assert.Equal(t, a.ContentHash(), b.ContentHash())

	b.SamplerData = DefaultSamplerStagingData()
	assert.Equal(t, a.ContentHash(), b.ContentHash())

	b.SamplerData.MagFilter = 0
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())

	assert.Empty(t, (*ImportedTexture)(nil).ContentHash())
}
