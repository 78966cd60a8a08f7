package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"golf-server/cpu"
	"golf-server/eventlog"
	"golf-server/golf"
	"golf-server/pubsub"
	"golf-server/statecache"
)

const (
	defaultCleanupInterval = 30 * time.Second
	roomCodeAlphabet       = "ABCDEFGHJKLMNPQRSTUVWXYZ" // no I/O, avoids look-alike codes
	roomCodeLength         = 4
)

// Manager is the structural descendant of the teacher's Lobby: a registry
// of live rooms keyed by room code, shared infrastructure handles every
// room is constructed with, and a housekeeping goroutine that reaps rooms
// whose actor has already torn itself down.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	log      eventlog.Log
	cache    *statecache.Cache
	bus      *pubsub.Bus
	cpuMgr   *cpu.Manager
	policy   cpu.Policy
	serverID string
	send     Sender

	cleanupInterval time.Duration
	done            chan struct{}
	stopOnce        sync.Once
}

// New builds a Manager sharing the given collaborators across every room
// it creates. send delivers outbound frames for any room's human member.
func New(logStore eventlog.Log, cache *statecache.Cache, bus *pubsub.Bus, cpuMgr *cpu.Manager, policy cpu.Policy, serverID string, send Sender) *Manager {
	m := &Manager{
		rooms:           make(map[string]*Room),
		log:             logStore,
		cache:           cache,
		bus:             bus,
		cpuMgr:          cpuMgr,
		policy:          policy,
		serverID:        serverID,
		send:            send,
		cleanupInterval: defaultCleanupInterval,
		done:            make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// CreateRoom allocates a fresh room code and game id, starts the room's
// actor, and registers it for lookup.
func (m *Manager) CreateRoom(hostID string, cfg golf.Config) (*Room, error) {
	m.mu.Lock()
	code := m.newRoomCodeLocked()
	m.mu.Unlock()

	gameID := uuid.New()
	deps := Deps{
		Log: m.log, Cache: m.cache, Bus: m.bus,
		CPU: m.cpuMgr, Policy: m.policy, ServerID: m.serverID, Send: m.send,
	}
	r, err := newRoom(code, gameID, cfg, deps, m.forget)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.cache.CreateRoom(ctx, code, gameID.String(), hostID, m.serverID); err != nil {
			log.Printf("[room manager] cache create room %s: %v", code, err)
		}
	}

	m.mu.Lock()
	m.rooms[code] = r
	m.mu.Unlock()
	return r, nil
}

// Register adds an already-constructed room to the registry, for package
// recovery to re-home a game recovered from the event log.
func (m *Manager) Register(r *Room) {
	m.mu.Lock()
	m.rooms[r.Code] = r
	m.mu.Unlock()
}

// Get returns the room for code, if it is currently live on this replica.
func (m *Manager) Get(code string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	return r, ok
}

// Codes returns every room code currently registered.
func (m *Manager) Codes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	return codes
}

func (m *Manager) newRoomCodeLocked() string {
	for {
		code := randomRoomCode()
		if _, exists := m.rooms[code]; !exists {
			return code
		}
	}
}

func randomRoomCode() string {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform's entropy source is
		// broken; there is no sane fallback, so surface it loudly rather
		// than silently handing out colliding or predictable codes.
		panic(fmt.Sprintf("room: read random room code: %v", err))
	}
	code := make([]byte, roomCodeLength)
	for i, b := range buf {
		code[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(code)
}

// forget removes a room from the registry once its actor has torn itself
// down. It is handed to newRoom as the onClosed callback.
func (m *Manager) forget(code string) {
	m.mu.Lock()
	delete(m.rooms, code)
	m.mu.Unlock()
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepClosed()
		case <-m.done:
			return
		}
	}
}

// sweepClosed catches any room whose onClosed callback fired while the
// registry lock was contended, or a room wedged between Stop and
// forget; a normal teardown already removes itself via forget.
func (m *Manager) sweepClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, r := range m.rooms {
		if r.IsClosed() {
			delete(m.rooms, code)
		}
	}
}

// Stop halts housekeeping and every live room's actor.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		rooms := make([]*Room, 0, len(m.rooms))
		for _, r := range m.rooms {
			rooms = append(rooms, r)
		}
		m.rooms = make(map[string]*Room)
		m.mu.Unlock()

		for _, r := range rooms {
			r.Stop()
		}
	})
}
