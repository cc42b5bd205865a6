package settlement

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentRules_Check(t *testing.T) {
	rules := DefaultContentRules()
	longText := strings.Repeat("а", 250)

	t.Run("valid feedback", func(t *testing.T) {
		reasons := rules.Check(longText, []string{"Подготовить резюме под роль", "Пройти два мок-интервью"})
		assert.Empty(t, reasons)
	})

	t.Run("short text and few actions", func(t *testing.T) {
		reasons := rules.Check("коротко", []string{"одно действие"})
		assert.Contains(t, reasons, "text_too_short")
		assert.Contains(t, reasons, "too_few_actions")
	})

	t.Run("duplicate and short actions", func(t *testing.T) {
		reasons := rules.Check(longText, []string{"Сделать pet-проект", "сделать pet-проект", "да"})
		assert.Contains(t, reasons, "duplicate_actions")
		assert.Contains(t, reasons, "action_too_short")
	})
}

func TestLoadContentRules(t *testing.T) {
	t.Run("empty path gives defaults", func(t *testing.T) {
		rules, err := LoadContentRules("")
		require.NoError(t, err)
		assert.Equal(t, DefaultContentRules(), rules)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "qc.yaml")
		require.NoError(t, os.WriteFile(path, []byte("min_text_length: 50\nmin_actions: 1\n"), 0o600))

		rules, err := LoadContentRules(path)
		require.NoError(t, err)
		assert.Equal(t, 50, rules.MinTextLength)
		assert.Equal(t, 1, rules.MinActions)
		assert.Equal(t, 5000, rules.MaxTextLength)
	})

	t.Run("inconsistent bounds rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "qc.yaml")
		require.NoError(t, os.WriteFile(path, []byte("min_text_length: 100\nmax_text_length: 10\n"), 0o600))

		_, err := LoadContentRules(path)
		assert.Error(t, err)
	})
}
