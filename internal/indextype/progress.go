package indextype

// ProgressEvent reports how far a precompute or verify run has come.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// IndexState is the index state of the checkpoint just produced or checked.
	IndexState uint64

	// BytesIn is the number of uncompressed tar bytes consumed so far.
	BytesIn uint64

	// BytesOut is the number of compressed bytes written so far.
	BytesOut uint64

	// CheckpointsDone is the number of checkpoints completed.
	CheckpointsDone int

	// CheckpointsTotal is the total number of checkpoints.
	// Zero indicates the total is unknown, as it is while precomputing.
	CheckpointsTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for precompute and verify.
const (
	// StageCompressing indicates a chunk is being fed to the main coder.
	StageCompressing ProgressStage = iota

	// StageCheckpointing indicates a trailer was produced for a chunk.
	StageCheckpointing

	// StageFinishing indicates the final trailer is being written.
	StageFinishing

	// StageVerifying indicates a checkpoint passed verification.
	StageVerifying
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageCompressing:
		return "compressing"
	case StageCheckpointing:
		return "checkpointing"
	case StageFinishing:
		return "finishing"
	case StageVerifying:
		return "verifying"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
