package transport

// PeerType — тег удалённого типа собеседника.
type PeerType string

const (
	PeerUser    PeerType = "user"
	PeerChat    PeerType = "chat"
	PeerChannel PeerType = "channel"
)

// Peer ссылается на собеседника по типу и идентификатору.
type Peer struct {
	Type PeerType
	ID   int64
}

// User — строка таблицы пользователей.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Deleted   bool
}

// Chat — строка таблицы чатов. Type равен PeerChat для обычных групп и
// PeerChannel для каналов и супергрупп.
type Chat struct {
	ID        int64
	Type      PeerType
	Title     string
	Broadcast bool
	Megagroup bool
}

// Message — сообщение в удалённом представлении. Date — unix-время в секундах.
// From пуст, если отправитель не указан (личные диалоги, посты каналов).
type Message struct {
	ID   int
	Peer Peer
	From *Peer
	Text string
	Date int
	Out  bool
}

// Dialog — запись списка диалогов.
type Dialog struct {
	Peer        Peer
	TopMessage  int
	UnreadCount int
}

// DialogTables — ответ ListDialogs: диалоги в порядке сервера (последняя
// активность сверху) и сопутствующие таблицы для разрешения собеседников.
type DialogTables struct {
	Dialogs  []Dialog
	Users    []User
	Chats    []Chat
	Messages []Message
	// Self — текущий пользователь, если транспорт его знает.
	Self *User
}

// HistoryTables — ответ GetHistory. Messages от новых к старым.
type HistoryTables struct {
	Messages []Message
	Users    []User
	Chats    []Chat
}
