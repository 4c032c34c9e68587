package ffmpeg

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBuffer_KeepsLastLines(t *testing.T) {
	tb := NewTailBuffer(3)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(tb, "line %d\n", i)
	}
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, tb.Lines())
}

func TestTailBuffer_PartialWrites(t *testing.T) {
	tb := NewTailBuffer(10)
	_, _ = tb.Write([]byte("Error opening in"))
	_, _ = tb.Write([]byte("put\r\nsecond"))

	assert.Equal(t, []string{"Error opening input", "second"}, tb.Lines())
	assert.Equal(t, "Error opening input\nsecond", tb.String())
}

func TestTailBuffer_SkipsBlankLines(t *testing.T) {
	tb := NewTailBuffer(2)
	_, _ = tb.Write([]byte("\n\n  \nreal\n"))
	assert.Equal(t, []string{"real"}, tb.Lines())
}
