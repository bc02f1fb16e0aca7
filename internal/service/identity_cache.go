package service

import "sync"

// EffectiveIdentityCache memoises one resolved effective user id together with
// the source user id it was resolved for. The value is only trusted while the
// caller's current user id equals the recorded source; any mismatch empties the
// slot before it is read.
type EffectiveIdentityCache struct {
	mu              sync.Mutex
	sourceUserID    string
	effectiveUserID string
}

// NewEffectiveIdentityCache returns an empty cache.
func NewEffectiveIdentityCache() *EffectiveIdentityCache {
	return &EffectiveIdentityCache{}
}

// Lookup returns the cached effective id for currentUserID.
// A slot recorded for a different source user is cleared first.
func (c *EffectiveIdentityCache) Lookup(currentUserID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sourceUserID != currentUserID {
		c.clearLocked()
		return "", false
	}
	if c.effectiveUserID == "" {
		return "", false
	}
	return c.effectiveUserID, true
}

// Store records effectiveUserID as resolved for sourceUserID.
func (c *EffectiveIdentityCache) Store(sourceUserID, effectiveUserID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sourceUserID = sourceUserID
	c.effectiveUserID = effectiveUserID
}

// InvalidateUnless clears the slot when it holds a value for a user other than userID.
// It reports whether anything was cleared.
func (c *EffectiveIdentityCache) InvalidateUnless(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sourceUserID == "" || c.sourceUserID == userID {
		return false
	}
	c.clearLocked()
	return true
}

// Clear empties the slot.
func (c *EffectiveIdentityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Snapshot returns both fields without applying the source check.
func (c *EffectiveIdentityCache) Snapshot() (sourceUserID, effectiveUserID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceUserID, c.effectiveUserID
}

func (c *EffectiveIdentityCache) clearLocked() {
	c.sourceUserID = ""
	c.effectiveUserID = ""
}
