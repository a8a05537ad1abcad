package pipeline

import (
	"github.com/jonathan/snapsolver/internal/types"
)

// Context is the per-task scratch state threaded through the stages. It is
// owned exclusively by the worker executing the task and never shared.
type Context struct {
	Task          types.Task
	Category      types.Category
	MergedText    string
	ProblemText   string
	ResultText    string
	SuggestedName string
	OutputPath    string
}

// bestText returns the most processed text available, for failure records.
func (c *Context) bestText() string {
	if c.ResultText != "" {
		return c.ResultText
	}
	if c.ProblemText != "" {
		return c.ProblemText
	}
	return c.MergedText
}
