package reminder

import (
	"html"
	"strconv"
	"strings"
)

const messageHeader = "War reminder: please use your attacks."

// Recipient is a bound user selected for a reminder in one group.
type Recipient struct {
	UserID    int64
	Name      string
	PlayerTag string
}

// Mention renders an inline HTML mention resolvable by Telegram user id. The
// display name is escaped.
func Mention(userID int64, name string) string {
	return `<a href="tg://user?id=` + strconv.FormatInt(userID, 10) + `">` + html.EscapeString(name) + `</a>`
}

// ComposeMessage renders one reminder mentioning every recipient, in order.
func ComposeMessage(recipients []Recipient) string {
	mentions := make([]string, 0, len(recipients))
	for _, r := range recipients {
		mentions = append(mentions, Mention(r.UserID, displayName(r)))
	}
	return messageHeader + "\n" + strings.Join(mentions, " ")
}

func displayName(r Recipient) string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	if r.PlayerTag != "" {
		return r.PlayerTag
	}
	return "player"
}
