package queue

// NotificationKind names what happened so the booking workflow can route it.
type NotificationKind string

const (
	NotificationTextReply  NotificationKind = "text_reply"
	NotificationTextSent   NotificationKind = "text_sent"
	NotificationMailSent   NotificationKind = "mail_sent"
	NotificationStatusLost NotificationKind = "app_failed"
)

type Notification struct {
	Kind     NotificationKind
	AppID    int64
	TypeName string
	// Payload is JSON encoded onto the stream entry.
	Payload any
	TraceID *string
	Attempt int
}
