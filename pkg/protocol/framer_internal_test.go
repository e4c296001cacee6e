package protocol

import (
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramer_fill_GrowsInChunks(t *testing.T) {
	f := NewFramer(strings.NewReader(strings.Repeat("a", readChunk+10)), nil)

	require.NoError(t, f.fill())
	assert.Equal(t, readChunk, cap(f.rd))
	assert.Equal(t, readChunk, len(f.rd))

	require.NoError(t, f.fill())
	assert.Equal(t, 2*readChunk, cap(f.rd))
	assert.Equal(t, readChunk+10, len(f.rd))
}

func TestFramer_ReadLine_KeepsRemainder(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader(""))
	f := NewFramer(r, nil)
	f.rd = append(f.rd, "one\r\ntw"...)

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "one", string(line))
	assert.Equal(t, "tw", string(f.rd))
}
