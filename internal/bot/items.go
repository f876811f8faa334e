package bot

import (
	"sync"

	"github.com/xaenox/labelbot/internal/models"
)

// maxChatItems bounds how many recent items each chat remembers.
const maxChatItems = 50

type chatItem struct {
	ID    string
	Text  string
	Scope string
}

// itemBook tracks the recent items of every chat and the drift group last
// shown to it.
type itemBook struct {
	mu    sync.Mutex
	items map[int64][]chatItem
	drift map[int64]*models.DriftGroup
}

func newItemBook() *itemBook {
	return &itemBook{
		items: make(map[int64][]chatItem),
		drift: make(map[int64]*models.DriftGroup),
	}
}

func (b *itemBook) add(chatID int64, item chatItem) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := append(b.items[chatID], item)
	if len(items) > maxChatItems {
		items = items[len(items)-maxChatItems:]
	}
	b.items[chatID] = items
}

func (b *itemBook) last(chatID int64) (chatItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.items[chatID]
	if len(items) == 0 {
		return chatItem{}, false
	}
	return items[len(items)-1], true
}

func (b *itemBook) inScope(chatID int64, scope string) []chatItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []chatItem
	for _, it := range b.items[chatID] {
		if it.Scope == scope {
			out = append(out, it)
		}
	}
	return out
}

func (b *itemBook) setDrift(chatID int64, g *models.DriftGroup) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if g == nil {
		delete(b.drift, chatID)
		return
	}
	b.drift[chatID] = g
}

func (b *itemBook) pendingDrift(chatID int64) *models.DriftGroup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drift[chatID]
}
