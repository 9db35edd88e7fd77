package config

// Redis backs the request rate limiter, the catalogue response cache and
// the webhook delivery de-duplication.  None of them is authoritative: if
// the server cannot be reached at startup the constructor returns nil and
// each feature turns itself off.

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient connects using the environment read by redisOptions and
// pings the server.  It returns nil when the server is unreachable.
func NewRedisClient() *redis.Client {
	opts := redisOptions()
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).WithField("addr", opts.Addr).Warn("redis unavailable; rate limiting, caching and webhook de-duplication disabled")
		_ = client.Close()
		return nil
	}
	return client
}

// redisOptions reads
//
//	REDIS_ADDR                      host:port, overridden by REDIS_HOST plus REDIS_PORT
//	REDIS_PASSWORD, REDIS_DB        credentials and database number
//	REDIS_TLS                       enable TLS
//	REDIS_TLS_SERVER_NAME           name to verify, defaults to the host
//	REDIS_TLS_INSECURE_SKIP_VERIFY  accept any certificate (local testing only)
func redisOptions() *redis.Options {
	addr := getenv("REDIS_ADDR", "localhost:6379")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = net.JoinHostPort(host, port)
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	opts.DB = envInt("REDIS_DB", 0)
	if !envBool("REDIS_TLS", false) {
		return opts
	}

	serverName := os.Getenv("REDIS_TLS_SERVER_NAME")
	if serverName == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			serverName = host
		} else {
			serverName = addr
		}
	}
	opts.TLSConfig = &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	if envBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false) {
		logrus.WithField("addr", addr).Warn("redis TLS certificate verification disabled")
		opts.TLSConfig.InsecureSkipVerify = true
	}
	return opts
}
