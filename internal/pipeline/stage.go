package pipeline

// Stage names the strictly sequential states a task moves through. FAILED is
// a parallel terminal state reachable from any stage.
type Stage string

const (
	StageClassify   Stage = "CLASSIFY"
	StageTextualize Stage = "TEXTUALIZE"
	StageSolve      Stage = "SOLVE"
	StagePersist    Stage = "PERSIST"
	StageRename     Stage = "RENAME"
	StageArchive    Stage = "ARCHIVE"
	StageDone       Stage = "DONE"
	StageFailed     Stage = "FAILED"
)
