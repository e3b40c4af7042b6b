package bot

import "github.com/procrastinando/telegrambot-anythingllm/internal/anythingllm"

// IdentityCache maps Telegram chat ids to AnythingLLM account ids.
// It is a fast path only: /start and /reset_password always re-query
// the admin API and rewrite the entry, so a stale or missing entry is
// never fatal. Memory-only, unbounded, owned by the single poll-loop
// goroutine; no locking by design.
type IdentityCache struct {
	ids map[int64]anythingllm.UserID
}

func NewIdentityCache() *IdentityCache {
	return &IdentityCache{ids: make(map[int64]anythingllm.UserID)}
}

func (c *IdentityCache) Get(chatID int64) (anythingllm.UserID, bool) {
	id, ok := c.ids[chatID]
	return id, ok
}

func (c *IdentityCache) Set(chatID int64, id anythingllm.UserID) {
	c.ids[chatID] = id
}

func (c *IdentityCache) Remove(chatID int64) {
	delete(c.ids, chatID)
}

func (c *IdentityCache) Len() int {
	return len(c.ids)
}
