// Package syncqueue applies business mutations recorded by field actors on
// intermittently connected devices exactly once against the backend.
//
// Devices buffer sales, stock adjustments, payments and purchase orders while
// offline and submit them with a client generated idempotency key once they
// reconnect. The package takes care of duplicate submissions, retries with
// exponential backoff, per-actor ordering and recovery of operations whose
// worker disappeared mid-flight.
//
// The package is organised around a few cooperating components:
//
//   - Service: enqueue (single and batch), status queries and admin actions
//   - Registry: maps an OperationType to the Handler that applies it
//   - Processor: worker pool that acquires one operation per actor at a time
//   - Sweeper: liveness sweep returning abandoned operations to pending
//   - RetryController: turns handler results into retry decisions
//   - EventBus: in-process fan-out of lifecycle events
//
// All persistence goes through the LedgerRepository, ProcessorRepository and
// AdminRepository interfaces. MemoryStorage implements all of them for tests
// and local development; the pgstore subpackage is the PostgreSQL backend.
//
// # Lifecycle
//
//	pending ──► processing ──► completed
//	   │            │  └──────► failed ──┐
//	   │            └─► pending (retry)  │
//	   └──► cancelled ──────────────────►┴─► pending (admin requeue)
//
// # Usage
//
//	store := syncqueue.NewMemoryStorage()
//	registry := syncqueue.NewRegistry(3)
//	_ = registry.Register(syncqueue.TypeSale, syncqueue.ErrorHandler(applySale))
//
//	svc, _ := syncqueue.NewService(store, registry)
//	res, err := svc.Enqueue(ctx, syncqueue.EnqueueRequest{
//	    ActorID:        "merchant-42",
//	    OperationType:  syncqueue.TypeSale,
//	    Payload:        payload,
//	    IdempotencyKey: "device-7:0001",
//	})
//
//	proc, _ := syncqueue.NewProcessor(store, registry, syncqueue.WithWorkers(4))
//	g.Go(proc.Run(ctx))
package syncqueue
