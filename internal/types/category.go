package types

// Category is the classification label assigned to a task by the
// classification collaborator. It is used purely for routing: selecting the
// prompt template and solver model downstream.
type Category string

// Category constants match the keywords the classifier is instructed to emit.
const (
	// CategoryLeetCode is a coding problem solved inside a class skeleton.
	CategoryLeetCode Category = "LEETCODE"
	// CategoryACM is a coding problem requiring a full stdin/stdout program.
	CategoryACM Category = "ACM"
	// CategoryGeneral is a non-coding problem (multiple choice, logic, etc.).
	CategoryGeneral Category = "GENERAL"
	// CategoryVisualReasoning is a problem that must be answered from the
	// images directly and has no useful textual transcription.
	CategoryVisualReasoning Category = "VISUAL_REASONING"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryLeetCode, CategoryACM, CategoryGeneral, CategoryVisualReasoning:
		return true
	}
	return false
}
