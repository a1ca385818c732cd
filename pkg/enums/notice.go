package enums

// NoticeSeverity classifies a user-facing message.
type NoticeSeverity string

const (
	NoticeSuccess NoticeSeverity = "success"
	NoticeInfo    NoticeSeverity = "notice"
	NoticeError   NoticeSeverity = "error"
)

func (s NoticeSeverity) String() string {
	return string(s)
}
