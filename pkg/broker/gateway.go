package broker

import "context"

// Gateway abstracts the external order-execution venue. All blocking broker
// I/O in the engine goes through this interface, bounded by a per-call
// timeout on the caller's context.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetPositions(ctx context.Context) ([]Position, error)
}
