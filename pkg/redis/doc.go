// Package redis connects the go-redis client used to cache Shopify shop lookups.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Redis is optional: Config.Enabled is false when REDIS_URL is empty and the
// billing adapter then queries Shopify directly.
package redis
