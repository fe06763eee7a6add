package rdx

import (
	"log"

	"festa/globals"

	"github.com/redis/go-redis/v9"
)

var Conn *redis.Client

// Connect dials redis; the rate limiter degrades to its in-process window
// when this fails, so a missing redis is logged, not fatal.
func Connect(addr string) {
	Conn = redis.NewClient(&redis.Options{Addr: addr})
	if err := Conn.Ping(globals.Ctx).Err(); err != nil {
		log.Println("Redis unavailable:", err)
		Conn = nil
		return
	}
	log.Println("✅ Connected to Redis at", addr)
}
