package tree

import "strings"

// ParseMode tells Telegram how to interpret a node's text. The empty string
// means plain text (no formatting entity parsing).
type ParseMode string

const (
	ModeHTML       ParseMode = "HTML"
	ModeMarkdownV2 ParseMode = "MarkdownV2"
	ModePlain      ParseMode = ""
)

// NormalizeParseMode maps stored parse-mode strings onto the closed set of
// modes. Any "markdown" casing variant becomes MarkdownV2; everything else
// that is not explicitly plain falls back to HTML.
func NormalizeParseMode(pm string) ParseMode {
	pm = strings.TrimSpace(pm)
	switch {
	case pm == "":
		return ModeHTML
	case strings.HasPrefix(strings.ToLower(pm), "markdown"):
		return ModeMarkdownV2
	case strings.EqualFold(pm, "plain"):
		return ModePlain
	default:
		return ModeHTML
	}
}

// Node is one addressable position in a chat's content tree. The node with a
// nil ParentID is the chat's root (the welcome message); every other node is a
// button-reachable submenu. Child nodes are only ever created attached to an
// existing parent, which keeps the tree acyclic.
type Node struct {
	ID        int64
	ChatID    int64
	ParentID  *int64
	Text      string
	ParseMode ParseMode
	ImageURL  string
	Buttons   []Row
}

// IsRoot reports whether the node is its chat's welcome message.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// ButtonCount returns the number of stored buttons across all rows.
func (n *Node) ButtonCount() int {
	total := 0
	for _, row := range n.Buttons {
		total += len(row)
	}
	return total
}
