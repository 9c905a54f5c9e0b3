// Package store holds the short-lived reply cache. Answers to identical
// questions within a small freshness window are served without touching the
// backend; audio turns never go through here.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"hormur-widget-backend/internal/types"
)

const replyTTL = 10 * time.Minute

type cacheEntry struct {
	reply   types.ChatReply
	addedAt time.Time
}

// ReplyCache is a bounded map keyed by a normalized hash of
// (userProfile, messageText), with oldest-first eviction past the cap.
type ReplyCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	order      []string
	maxEntries int

	now func() time.Time
}

func NewReplyCache(maxEntries int) *ReplyCache {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	return &ReplyCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key normalizes (profile, text) into a stable cache key: lower-cased,
// punctuation-stripped, word-sorted, then hashed.
func Key(profile, text string) string {
	words := strings.Fields(scrub(text))
	sort.Strings(words)
	h := sha256.Sum256([]byte(strings.ToLower(profile) + "|" + strings.Join(words, " ")))
	return hex.EncodeToString(h[:])
}

func scrub(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
}

// Get returns the cached reply if one exists and is still fresh.
func (c *ReplyCache) Get(profile, text string) (types.ChatReply, bool) {
	key := Key(profile, text)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return types.ChatReply{}, false
	}
	if c.now().Sub(e.addedAt) > replyTTL {
		delete(c.entries, key)
		return types.ChatReply{}, false
	}
	return e.reply, true
}

// Put records a successful reply. Session-scoped fields are stripped so a
// cache hit never leaks another visitor's session handle or transcript.
func (c *ReplyCache) Put(profile, text string, reply types.ChatReply) {
	reply.SessionID = ""
	reply.TranscribedText = ""
	reply.Error = ""

	key := Key(profile, text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		// Refresh in place: remove both halves of the old entry so the
		// eviction loop below cannot count it against the cap.
		delete(c.entries, key)
		c.dropFromOrder(key)
	}
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = cacheEntry{reply: reply, addedAt: c.now()}
	c.order = append(c.order, key)
}

// Len reports the number of live entries.
func (c *ReplyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ReplyCache) dropFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
