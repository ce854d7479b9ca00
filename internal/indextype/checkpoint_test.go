package indextype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state uint64
		want  string
	}{
		{state: 0, want: "1970-01-01T00:00:00Z"},
		{state: 100, want: "1970-01-01T00:01:40Z"},
		{state: 200, want: "1970-01-01T00:03:20Z"},
		{state: 1700000000, want: "2023-11-14T22:13:20Z"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatKey(tt.state))

		got, err := ParseKey(tt.want)
		require.NoError(t, err)
		assert.Equal(t, tt.state, got)
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	got, err := ParseKey("1700000000")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), got)

	_, err = ParseKey("yesterday")
	assert.Error(t, err)

	_, err = ParseKey("1969-12-31T23:59:59Z")
	assert.Error(t, err)
}

func TestCheckpointSize(t *testing.T) {
	t.Parallel()

	cp := Checkpoint{IndexState: 100, PrefixSize: 10, Trailer: make([]byte, 98)}
	assert.Equal(t, uint64(108), cp.Size())
	assert.Equal(t, "1970-01-01T00:01:40Z", cp.Key())
}

func TestProgressStageString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "compressing", StageCompressing.String())
	assert.Equal(t, "checkpointing", StageCheckpointing.String())
	assert.Equal(t, "finishing", StageFinishing.String())
	assert.Equal(t, "verifying", StageVerifying.String())
	assert.Equal(t, "unknown", ProgressStage(99).String())
}
