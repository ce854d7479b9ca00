package prefixgz

import "github.com/meigma/prefixgz/internal/indextype"

// Re-export progress types from indextype.
type (
	// ProgressEvent reports how far a precompute or verify run has come.
	ProgressEvent = indextype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = indextype.ProgressStage

	// ProgressFunc receives progress updates during operations.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = indextype.ProgressFunc
)

// Re-export progress stage constants.
const (
	StageCompressing   = indextype.StageCompressing
	StageCheckpointing = indextype.StageCheckpointing
	StageFinishing     = indextype.StageFinishing
	StageVerifying     = indextype.StageVerifying
)
