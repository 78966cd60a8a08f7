package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"golf-server/cpu"
	"golf-server/dispatch"
	"golf-server/eventlog"
	"golf-server/pubsub"
	"golf-server/recovery"
	"golf-server/room"
	"golf-server/statecache"
	"golf-server/transport"
)

func main() {
	logStore, dbMode, err := eventlog.NewLogFromEnv(strings.ToLower(strings.TrimSpace(os.Getenv("GOLF_DB_MODE"))))
	if err != nil {
		log.Fatalf("[Server] Failed to init event log: %v", err)
	}
	defer logStore.Close()

	rdb, err := newRedisClientFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init redis client: %v", err)
	}
	defer rdb.Close()

	cache := statecache.New(rdb)
	serverID := serverIDFromEnv()
	bus := pubsub.New(rdb, serverID)

	cpuRegistry := cpu.NewRegistry()
	profilePaths := []string{"data/cpu_profiles.json", "../../data/cpu_profiles.json"}
	for _, p := range profilePaths {
		if err := cpuRegistry.LoadFromFile(p); err == nil {
			log.Printf("[Server] CPU profiles loaded from %s", p)
			break
		}
	}
	cpuMgr := cpu.NewManager(cpuRegistry)
	cpuPolicy := cpu.RandomLegalPolicy{}

	srv := transport.New()

	rooms := room.New(logStore, cache, bus, cpuMgr, cpuPolicy, serverID, srv.SendToPlayer)

	env := &dispatch.Environment{
		Rooms: rooms,
		Cache: cache,
		CPU:   cpuRegistry,
		Send:  srv.SendToPlayer,
	}
	srv.Env = env

	recoverySvc := &recovery.Service{
		Log:    logStore,
		Cache:  cache,
		Bus:    bus,
		Rooms:  rooms,
		CPU:    cpuMgr,
		Policy: cpuPolicy,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	summary, err := recoverySvc.RecoverAll(ctx)
	cancel()
	if err != nil {
		log.Printf("[Server] Game recovery failed: %v", err)
	} else {
		log.Printf("[Server] Recovery complete: recovered=%d skipped=%d failed=%d",
			summary.Recovered, summary.Skipped, summary.Failed)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := strings.TrimSpace(os.Getenv("SERVER_ADDR"))
	if addr == "" {
		addr = ":18080"
	}
	log.Printf("[Server] Database mode: %s", dbMode)
	log.Printf("[Server] Server id: %s", serverID)
	log.Printf("[Server] Starting WebSocket server on %s", addr)
	if err := http.ListenAndServe(addr, withCORS(mux)); err != nil {
		log.Fatalf("[Server] Failed to start: %v", err)
	}
}

// newRedisClientFromEnv builds the shared client statecache.Cache and
// pubsub.Bus dial against, so both sit on one connection pool.
func newRedisClientFromEnv() (*redis.Client, error) {
	url := strings.TrimSpace(os.Getenv("GOLF_REDIS_URL"))
	if url == "" {
		url = strings.TrimSpace(os.Getenv("REDIS_URL"))
	}
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// serverIDFromEnv names this replica for pub/sub echo-filtering and for
// the statecache room records recovered rooms are tagged with.
func serverIDFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("SERVER_ID")); v != "" {
		return v
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + strconv.Itoa(os.Getpid())
	}
	return "golf-server-" + strconv.Itoa(os.Getpid())
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
