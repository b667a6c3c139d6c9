package domain

// ChatKind distinguishes one-on-one chats from groups
type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

// CallPolicy values for the allow_calls_from user setting
const (
	CallPolicyEveryone = "everyone"
	CallPolicyFriends  = "friends"
	CallPolicyNobody   = "nobody"
)
