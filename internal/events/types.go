package events

// Topic enumerates the audit and alert streams inside the engine. Every
// approval, rejection, recovery, and failure is published so the trade
// history can be reconstructed post-hoc.
type Topic string

const (
	TopicSignalApproved   Topic = "signal.approved"
	TopicSignalRejected   Topic = "signal.rejected"
	TopicConflictResolved Topic = "signal.conflict_resolved"
	TopicManagementAction Topic = "position.management_action"
	TopicOrphanRecovered  Topic = "reconcile.orphan_recovered"
	TopicPhantomDropped   Topic = "reconcile.phantom_dropped"
	TopicPhaseTransition  Topic = "closure.phase_transition"
	TopicDispatchFailure  Topic = "dispatch.failure"
	TopicCriticalAlert    Topic = "alert.critical"
)
