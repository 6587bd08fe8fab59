// Package forward provides the default operation handlers: each operation
// type is posted to the business module endpoint that owns it.
//
// A forward is a single HTTP attempt; retries belong to the sync queue. The
// response decides the outcome:
//
//   - 2xx is a success
//   - 4xx other than 408, 425 and 429 is a permanent failure
//   - other statuses, network errors, timeouts and an open circuit are
//     transient failures
//
// Requests carry an Idempotency-Key header built from the actor and its
// idempotency key, plus X-Operation-ID, so that endpoints can deduplicate
// repeated deliveries. When a signing secret is set, X-Sync-Signature and
// X-Sync-Timestamp hold an HMAC-SHA256 over "timestamp.payload".
//
//	fwd, err := forward.New(cfg, forward.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	for typ, h := range fwd.Handlers() {
//		if err := registry.Register(typ, h, queueCfg.RegisterOptions(typ)...); err != nil {
//			return err
//		}
//	}
package forward
