// Package redis connects to Redis with go-redis/v9 and exposes a readiness
// probe. The client backs the distributed actor locks of the sync queue.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	ready := redis.Healthcheck(client)
package redis
