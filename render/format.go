package render

import (
	"fmt"
	"strings"

	"adminbot/tree"
)

// DefaultTemplate is used when a node has no text of its own.
const DefaultTemplate = "¡Bienvenido/a {mention} al grupo {group_name}! 🎉\n\nEsperamos que disfrutes tu estancia aquí."

// Viewer identifies the user a rendered message is addressed to. Only the
// fields the templates need; the core never sees the full transport user.
type Viewer struct {
	ID       int64
	Name     string
	Username string
}

const mdV2Special = "\\_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 escapes every MarkdownV2 special character. The backslash
// is first in the special set so it is escaped before it can double up.
func EscapeMarkdownV2(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(mdV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Truncate shortens s to at most max characters, appending an ellipsis when
// anything was cut. Counts runes, not bytes, so multibyte text is never split
// mid-character.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes the HTML-significant characters. Quotes are left alone;
// Telegram only requires the angle brackets and ampersand.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Format substitutes the template placeholders, escaping every user-supplied
// field for the active parse mode before substitution so a user named
// "<script>" cannot break the formatting. Unknown placeholders are left
// untouched.
func Format(template string, v Viewer, groupName string, mode tree.ParseMode) string {
	if template == "" {
		template = DefaultTemplate
	}

	rawName := v.Name
	if rawName == "" {
		rawName = "Usuario"
	}
	rawUsername := rawName
	if v.Username != "" {
		rawUsername = "@" + v.Username
	}
	rawGroup := groupName
	if rawGroup == "" {
		rawGroup = "el grupo"
	}

	var name, username, group, mention string
	switch mode {
	case tree.ModeMarkdownV2:
		name = EscapeMarkdownV2(rawName)
		username = EscapeMarkdownV2(rawUsername)
		group = EscapeMarkdownV2(rawGroup)
		mention = name
		if v.ID != 0 {
			mention = fmt.Sprintf("[%s](tg://user?id=%d)", name, v.ID)
		}
	case tree.ModeHTML:
		name = EscapeHTML(rawName)
		username = EscapeHTML(rawUsername)
		group = EscapeHTML(rawGroup)
		mention = name
		if v.ID != 0 {
			mention = fmt.Sprintf("<a href='tg://user?id=%d'>%s</a>", v.ID, name)
		}
	default:
		name = rawName
		username = rawUsername
		group = rawGroup
		mention = rawName
	}

	r := strings.NewReplacer(
		"{mention}", mention,
		"{name}", name,
		"{username}", username,
		"{group_name}", group,
	)
	return r.Replace(template)
}
