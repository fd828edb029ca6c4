package relay

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"jobrelay/internal/logging"
)

// defaultIndexSize is far above realistic in-flight volume; the LRU only
// exists to keep a long-lived process from accumulating bindings forever.
const defaultIndexSize = 4096

// ExecutionIndex maps engine-assigned execution ids to client-chosen workflow
// ids. Entries are written once via Bind and never explicitly deleted; a
// workflow id with no binding is a normal state (the trigger may have failed).
type ExecutionIndex struct {
	entries *lru.Cache[string, string]
	logger  logging.Logger
}

// NewExecutionIndex creates an empty index.
func NewExecutionIndex() *ExecutionIndex {
	cache, err := lru.New[string, string](defaultIndexSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(fmt.Sprintf("execution index: %v", err))
	}
	return &ExecutionIndex{
		entries: cache,
		logger:  logging.NewComponentLogger("ExecutionIndex"),
	}
}

// Bind associates executionID with workflowID. Re-binding the same pair is
// harmless; binding a different workflow id for a known execution id
// overwrites silently (last-write-wins).
func (ix *ExecutionIndex) Bind(executionID, workflowID string) error {
	if executionID == "" || workflowID == "" {
		return fmt.Errorf("%w: executionId and workflowId are required", ErrInvalidRequest)
	}

	ix.entries.Add(executionID, workflowID)
	ix.logger.Info("Bound execution %s -> workflow %s (entries: %d)", executionID, workflowID, ix.entries.Len())
	return nil
}

// Resolve looks up the workflow id bound to executionID. Absence is a valid
// outcome, not an error: the caller treats it as "cannot route yet".
func (ix *ExecutionIndex) Resolve(executionID string) (string, bool) {
	return ix.entries.Get(executionID)
}

// Len returns the number of live bindings.
func (ix *ExecutionIndex) Len() int {
	return ix.entries.Len()
}
