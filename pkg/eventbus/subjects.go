// Package eventbus provides the saga event channel: message contracts,
// envelopes, transports, and the retrying publisher.
package eventbus

// Subjects mirror the broker topology: commands and their outcome responses
// are point-to-point (one consumer group per queue), terminal transaction
// events are broadcast to any interested subscriber.
const (
	// Commands, orchestrator -> remote service.
	SubjectBalanceUpdate = "saga.balance.update"
	SubjectAssetUpdate   = "saga.asset.update"

	// Outcomes, remote service -> orchestrator.
	SubjectBalanceUpdated      = "saga.balance.updated"
	SubjectBalanceUpdateFailed = "saga.balance.update.failed"
	SubjectAssetUpdated        = "saga.asset.updated"
	SubjectAssetUpdateFailed   = "saga.asset.update.failed"

	// Terminal events, orchestrator -> anyone.
	SubjectTransactionCompleted = "saga.transaction.completed"
	SubjectTransactionFailed    = "saga.transaction.failed"
)

// Event types carried in envelopes.
const (
	EventTypeBalanceUpdate        = "balance.update"
	EventTypeAssetUpdate          = "asset.update"
	EventTypeBalanceUpdated       = "balance.updated"
	EventTypeBalanceUpdateFailed  = "balance.update.failed"
	EventTypeAssetUpdated         = "asset.updated"
	EventTypeAssetUpdateFailed    = "asset.update.failed"
	EventTypeTransactionCompleted = "transaction.completed"
	EventTypeTransactionFailed    = "transaction.failed"
)

// OutcomeSubjects lists every subject the orchestrator consumes.
func OutcomeSubjects() []string {
	return []string{
		SubjectBalanceUpdated,
		SubjectBalanceUpdateFailed,
		SubjectAssetUpdated,
		SubjectAssetUpdateFailed,
	}
}
