package cpu

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
)

// assignment is one outstanding profile hold: each profile has at most
// one holding seat, so the same profile can't be double-assigned while
// still in use, and it frees the instant its seat releases it.
type assignment struct {
	profile Profile
	seatID  string
}

// Manager assigns CPU profiles to seats and tracks which profiles are
// currently in use, process-wide, so two CPU seats never present the
// same personality at once.
type Manager struct {
	registry *Registry

	mu        sync.Mutex
	inUse     map[string]*assignment // profile name -> holder
	bySeat    map[string]string      // seat id -> profile name
	rng       *rand.Rand
}

// NewManager creates a CPU profile manager backed by registry.
func NewManager(registry *Registry) *Manager {
	return &Manager{
		registry: registry,
		inUse:    make(map[string]*assignment),
		bySeat:   make(map[string]string),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Registry returns the underlying profile registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Assign hands seatID a random available profile. Returns an error if
// every registered profile is currently held by another seat.
func (m *Manager) Assign(seatID string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.bySeat[seatID]; ok {
		return m.inUse[existing].profile, nil
	}

	var available []Profile
	for _, p := range m.registry.All() {
		if _, held := m.inUse[p.Name]; !held {
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return Profile{}, fmt.Errorf("cpu: no available profile for seat %s", seatID)
	}
	profile := available[m.rng.Intn(len(available))]
	m.inUse[profile.Name] = &assignment{profile: profile, seatID: seatID}
	m.bySeat[seatID] = profile.Name
	log.Printf("[CPU] assigned %s to seat %s", profile.Name, seatID)
	return profile, nil
}

// AssignSpecific hands seatID the named profile if it is registered and
// not already held by a different seat.
func (m *Manager) AssignSpecific(seatID, profileName string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.registry.Get(profileName)
	if !ok {
		return Profile{}, fmt.Errorf("cpu: unknown profile %q", profileName)
	}
	if holder, held := m.inUse[profileName]; held && holder.seatID != seatID {
		return Profile{}, fmt.Errorf("cpu: profile %q already in use", profileName)
	}
	m.inUse[profileName] = &assignment{profile: profile, seatID: seatID}
	m.bySeat[seatID] = profileName
	return profile, nil
}

// Release frees seatID's held profile back to the pool, if any.
func (m *Manager) Release(seatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.bySeat[seatID]
	if !ok {
		return
	}
	delete(m.bySeat, seatID)
	delete(m.inUse, name)
	log.Printf("[CPU] released %s from seat %s", name, seatID)
}

// Get returns the profile currently held by seatID, if any.
func (m *Manager) Get(seatID string) (Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.bySeat[seatID]
	if !ok {
		return Profile{}, false
	}
	return m.inUse[name].profile, true
}

// ThinkDelay returns a bounded randomized pause before a CPU seat acts,
// so CPU turns don't resolve instantaneously: 800ms plus up to 1500ms
// scaled by the profile's Unpredictability, plus 0-499ms of jitter.
// Higher unpredictability means a longer pause; the jitter range is the
// same for every profile.
func (m *Manager) ThinkDelay(profile Profile) time.Duration {
	m.mu.Lock()
	jitterMs := m.rng.Intn(500)
	m.mu.Unlock()

	baseMs := 800 + int(profile.Unpredictability*1500)
	return time.Duration(baseMs+jitterMs) * time.Millisecond
}
