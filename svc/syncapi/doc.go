// Package syncapi exposes the sync queue over HTTP.
//
// Devices submit operations recorded while offline and poll or stream their
// status; operators cancel, requeue and review failed operations:
//
//	POST /v1/operations                         enqueue one operation (201 new, 200 duplicate)
//	POST /v1/operations/batch                   enqueue a device's whole queue in order
//	GET  /v1/operations/{id}                    status of one operation
//	GET  /v1/actors/{actorID}/events            websocket stream of lifecycle events
//	POST /v1/admin/operations/{id}/cancel       cancel a pending operation
//	POST /v1/admin/operations/{id}/requeue      requeue a failed or cancelled operation
//	GET  /v1/admin/operations/failed            list failed operations
//	GET  /v1/admin/operations/backlog           list operations workers may pick up now
//
// Every JSON response uses the handler package envelope. Router also mounts
// the probe endpoints and, when configured, the Prometheus handler.
package syncapi
