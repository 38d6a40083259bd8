package cart

import "sync"

// subscriberBuffer は購読者ごとのイベントバッファ数。
const subscriberBuffer = 8

// Changed はカート内容が変わったことを表すイベント。
type Changed struct {
	UserID        string `json:"-"`
	TotalQuantity int    `json:"total_quantity"`
}

// Publisher はカート変更イベントの発行インターフェース。
type Publisher interface {
	Publish(ev Changed)
}

// Notifier はユーザー単位のカート変更イベントを購読者へ配信する。
// 配信はノンブロッキングで、バッファが詰まった購読者へのイベントは破棄する。
type Notifier struct {
	mu   sync.Mutex
	subs map[string]map[chan Changed]struct{}
}

// NewNotifier はNotifierを生成する。
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[chan Changed]struct{})}
}

// Subscribe は指定ユーザーのイベントを受け取るチャネルと、購読解除関数を返す。
// 解除関数は複数回呼んでもよい。解除後にチャネルはクローズされる。
func (n *Notifier) Subscribe(userID string) (<-chan Changed, func()) {
	ch := make(chan Changed, subscriberBuffer)

	n.mu.Lock()
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[chan Changed]struct{})
	}
	n.subs[userID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[userID], ch)
			if len(n.subs[userID]) == 0 {
				delete(n.subs, userID)
			}
			close(ch)
		})
	}
}

// Publish はイベントを対象ユーザーの全購読者へ配信する。
func (n *Notifier) Publish(ev Changed) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers は指定ユーザーの購読者数を返す。
func (n *Notifier) Subscribers(userID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[userID])
}

var _ Publisher = (*Notifier)(nil)
