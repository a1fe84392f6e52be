package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordBankPick(t *testing.T) {
	wb, err := newWordBank([]byte(`{"Random": ["Pizza", "Taco"], "Animals": ["Owl"]}`))
	require.NoError(t, err)

	t.Run("known category", func(t *testing.T) {
		assert.Equal(t, "Owl", wb.Pick("Animals"))
	})

	t.Run("unknown category falls back", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			assert.Contains(t, []string{"Pizza", "Taco"}, wb.Pick("Unknown"))
		}
	})

	t.Run("uniform selection stays in list", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			assert.Contains(t, []string{"Pizza", "Taco"}, wb.Pick("Random"))
		}
	})
}

func TestWordBankSynthesizesFallback(t *testing.T) {
	wb, err := newWordBank([]byte(`{"Animals": ["Owl"], "Food": ["Taco"]}`))
	require.NoError(t, err)

	// The fallback category must always resolve, even when the source
	// document does not define it.
	for i := 0; i < 20; i++ {
		assert.Contains(t, []string{"Owl", "Taco"}, wb.Pick(defaultCategory))
	}
}

func TestWordBankRejectsBadInput(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		_, err := newWordBank([]byte(`{}`))
		assert.Error(t, err)
	})

	t.Run("empty category", func(t *testing.T) {
		_, err := newWordBank([]byte(`{"Animals": []}`))
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := newWordBank([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestEmbeddedWordBank(t *testing.T) {
	wb, err := loadWordBank("")
	require.NoError(t, err)

	assert.Contains(t, wb.Categories(), defaultCategory)
	assert.NotEmpty(t, wb.Pick(defaultCategory))
}
