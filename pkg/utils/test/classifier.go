package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
)

// ScriptedClassifier returns its verdicts in order, repeating the last
// one. With no verdicts it answers Complete.
type ScriptedClassifier struct {
	mu       sync.Mutex
	verdicts []enddetect.Verdict
	inputs   []string

	// Err causes Classify to fail.
	Err error
}

func NewScriptedClassifier(verdicts ...enddetect.Verdict) *ScriptedClassifier {
	return &ScriptedClassifier{verdicts: verdicts}
}

func (c *ScriptedClassifier) Classify(_ context.Context, text string) (enddetect.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inputs = append(c.inputs, text)
	if c.Err != nil {
		return "", c.Err
	}

	if len(c.verdicts) == 0 {
		return enddetect.Complete, nil
	}
	v := c.verdicts[0]
	if len(c.verdicts) > 1 {
		c.verdicts = c.verdicts[1:]
	}
	return v, nil
}

// Inputs returns every text passed to Classify.
func (c *ScriptedClassifier) Inputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}
