package output

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAll(t *testing.T, opts Options, units ...Unit) (string, int) {
	t.Helper()

	var buf bytes.Buffer
	ctx := context.Background()
	w := NewWriter(&buf, opts)
	require.NoError(t, w.Open(ctx))
	for _, u := range units {
		require.NoError(t, w.Write(ctx, u))
	}
	n, err := w.Close(ctx)
	require.NoError(t, err)
	return buf.String(), n
}

// TestWriter_Envelope wraps each unit in the root tag and the whole output in
// the wrapper tag.
func TestWriter_Envelope(t *testing.T) {
	t.Parallel()

	got, n := writeAll(t, Options{Wrapper: "<batch>", Envelope: "order"},
		Unit{Index: 1, Text: "./id|7\n"},
		Unit{Index: 2, Text: ""},
		Unit{Index: 3, Text: "./id|9\n./sku|A\n"},
	)

	want := "<batch>\n" +
		"<order>\n./id|7\n</order>\n" +
		"<order>\n./id|9\n./sku|A\n</order>\n" +
		"</batch>\n"
	assert.Equal(t, want, got)
	assert.Equal(t, 2, n)
}

// TestWriter_Plain writes lines only, ignoring wrapper and envelope.
func TestWriter_Plain(t *testing.T) {
	t.Parallel()

	got, n := writeAll(t, Options{Format: FormatPlain, Wrapper: "batch", Envelope: "order"},
		Unit{Text: "./id|7\n"},
		Unit{Text: "./id|8"},
	)
	assert.Equal(t, "./id|7\n./id|8\n", got)
	assert.Equal(t, 2, n)
}

// TestWriter_Whole writes fragments verbatim inside the wrapper only.
func TestWriter_Whole(t *testing.T) {
	t.Parallel()

	got, n := writeAll(t, Options{Wrapper: "all", Envelope: "o", Whole: true},
		Unit{Text: "<o><a>1</a></o>"},
		Unit{Text: ""},
	)
	assert.Equal(t, "<all>\n<o><a>1</a></o>\n</all>\n", got)
	assert.Equal(t, 1, n)
}

// TestWriter_NoWrapper omits wrapper lines when no tag is given.
func TestWriter_NoWrapper(t *testing.T) {
	t.Parallel()

	got, _ := writeAll(t, Options{Envelope: "o"}, Unit{Text: "x\n"})
	assert.Equal(t, "<o>\nx\n</o>\n", got)
}

func TestTagName(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"batch":    "batch",
		"<batch>":  "batch",
		"</batch>": "batch",
		" <a:b> ":  "a:b",
	} {
		assert.Equal(t, want, TagName(in), in)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatEnvelope, f)

	f, err = ParseFormat("PLAIN")
	require.NoError(t, err)
	assert.Equal(t, FormatPlain, f)

	_, err = ParseFormat("csv")
	assert.Error(t, err)
}
