package discovery

import "fmt"

// TargetReachedReason formats the completion reason for a task that met its target.
func TargetReachedReason(accepted, target int) string {
	return fmt.Sprintf(reasonTargetReachedFmt, accepted, target)
}

// ScanLimitReason formats the completion reason for a task stopped by the scan ceiling.
func ScanLimitReason(scanned int) string {
	return fmt.Sprintf(reasonScanLimitFmt, scanned)
}

// FailureReason formats the completion reason for a task that failed unexpectedly.
func FailureReason(err error, logPath string) string {
	return fmt.Sprintf("Unexpected Error: %v. Log: %s", err, logPath)
}
