package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmlbar/internal/config"
)

// TestDebug_Limit prints matches for the first records only.
func TestDebug_Limit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Input = writeFile(t, dir, "in.xml", ordersXML(1, 5))
	cfg.Debug = config.DebugConfig{Selector: "./items/item/sku", Text: true, Limit: 2, Root: "order"}

	var out bytes.Buffer
	n, err := (&Runner{}).Debug(context.Background(), cfg, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "=== record 1 ===\nS1\n\n=== record 2 ===\nS2\n\n", out.String())
}

// TestDebug_TemplateRoot takes the record tag from the template.
func TestDebug_TemplateRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Input = writeFile(t, dir, "in.xml", ordersXML(1, 1))
	cfg.Template = writeFile(t, dir, "t.json", orderTemplate)
	cfg.Debug = config.DebugConfig{Selector: "./id"}

	var out bytes.Buffer
	n, err := (&Runner{}).Debug(context.Background(), cfg, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "<id>1</id>")
}
