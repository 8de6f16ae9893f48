// Package redis connects to Redis for the Redis transport and for
// application code that needs a client.
//
// Connect parses the URL (redis:// or rediss://), creates a go-redis client
// and pings it until it answers, retrying with a doubling interval:
//
//	client, err := redis.Connect(ctx, redis.Config{
//		ConnectionURL: "redis://localhost:6379/0",
//		RetryAttempts: 3,
//		RetryInterval: time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Healthcheck returns a ping function for readiness probes.
//
// Config carries env tags and can be loaded with config.Load.
// Errors are wrapped with the sentinels in errors.go; check them with errors.Is.
package redis
