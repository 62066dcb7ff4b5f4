package discovery

import "context"

// Outcome is the terminal result of one task run.
type Outcome struct {
	Status   Status
	Reason   string
	Accepted int
	Scanned  int
}

// CancelledOutcome is the result of a run stopped by its user.
func CancelledOutcome(accepted, scanned int) Outcome {
	return Outcome{Status: StatusCancelled, Reason: ReasonUserCancelled, Accepted: accepted, Scanned: scanned}
}

// StopRequested reports whether the task's cancel token fired or its stored status
// asks for cancellation. Store errors are treated as "keep going".
func StopRequested(ctx context.Context, store TaskStore, taskID string) bool {
	if ctx.Err() != nil {
		return true
	}
	status, err := store.GetStatus(ctx, taskID)
	if err != nil {
		return false
	}
	return status.CancelRequested()
}
