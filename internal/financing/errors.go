package financing

import (
	"fmt"
	"strings"
)

// PartialFailureError reports a multi-step write that stopped half way on a
// store without transactions. Completed lists the steps already applied.
type PartialFailureError struct {
	Operation string
	Completed []string
	Failed    string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s partially applied (done: %s; failed: %s): %v",
		e.Operation, strings.Join(e.Completed, ", "), e.Failed, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
