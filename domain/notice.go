package domain

type NoticeLevel string

const (
	INFO    NoticeLevel = "INFO"
	WARNING NoticeLevel = "WARNING"
	ERROR   NoticeLevel = "ERROR"
)

// Notice is a transient user-facing message. It never blocks the user.
type Notice struct {
	Level   NoticeLevel
	Message string
}
