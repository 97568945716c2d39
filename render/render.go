// Package render owns the single safe-render protocol: it turns a node into
// the right platform mutation (edit text, edit caption, or a fresh send),
// swallows Telegram's benign "not modified" rejection, and retries exactly
// once with formatting disabled when the active parse mode cannot digest the
// text. Both interactive navigation and welcome delivery go through here.
package render

import (
	"context"
	"log"

	"adminbot/action"
	"adminbot/telegram"
	"adminbot/tree"
)

// Transport is the slice of the Telegram client the renderer needs.
type Transport interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string, markup *telegram.InlineKeyboardMarkup, parseMode string) error
	SendPhoto(ctx context.Context, chatID int64, threadID int, photo, caption string, markup *telegram.InlineKeyboardMarkup, parseMode string) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, markup *telegram.InlineKeyboardMarkup, parseMode string) error
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string, markup *telegram.InlineKeyboardMarkup, parseMode string) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// Target describes the already-delivered message a render call may edit in
// place. IsPhoto decides whether an in-place edit goes to the caption or the
// text; CallbackID lets the renderer acknowledge benign outcomes.
type Target struct {
	ChatID     int64
	MessageID  int
	ThreadID   int
	IsPhoto    bool
	CallbackID string
}

// Renderer applies nodes to messages through a Transport.
type Renderer struct {
	tg Transport
}

// New builds a Renderer on top of a transport.
func New(tg Transport) *Renderer {
	return &Renderer{tg: tg}
}

// BuildKeyboard converts a node's stored buttons into inline markup and
// synthesizes the navigation row: Atrás/Inicio under a submenu, Inicio alone
// under a root that has any buttons. Navigation buttons are never stored.
func BuildKeyboard(n *tree.Node) *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	for _, row := range n.Buttons {
		var rb []telegram.InlineKeyboardButton
		for _, b := range row {
			switch b.Type {
			case tree.ButtonURL:
				if b.URL == "" {
					continue
				}
				text := b.Text
				if text == "" {
					text = tree.DefaultURLLabel
				}
				rb = append(rb, telegram.InlineKeyboardButton{Text: text, URL: b.URL})
			case tree.ButtonNode:
				if b.NodeID == 0 {
					continue
				}
				text := b.Text
				if text == "" {
					text = tree.DefaultNodeLabel
				}
				rb = append(rb, telegram.InlineKeyboardButton{Text: text, CallbackData: action.NodeLink(b.NodeID)})
			}
		}
		if len(rb) > 0 {
			rows = append(rows, rb)
		}
	}

	if n.ParentID != nil {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: "◀️ Atrás", CallbackData: action.NodeLink(*n.ParentID)},
			{Text: "🏠 Inicio", CallbackData: action.HomeLink(n.ChatID)},
		})
	} else if len(rows) > 0 {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: "🏠 Inicio", CallbackData: action.HomeLink(n.ChatID)},
		})
	}

	if len(rows) == 0 {
		return nil
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// mutation is one chosen platform operation, parameterised only by the final
// text and parse mode so the plain-text retry reuses the same edit-vs-send
// decision.
type mutation func(text, parseMode string) error

// apply runs a mutation with the node's formatted text and falls back to the
// unformatted rendering once if the parse mode chokes. Any other failure
// propagates untouched.
func (r *Renderer) apply(n *tree.Node, v Viewer, groupName string, op mutation) error {
	mode := n.ParseMode
	err := op(Format(n.Text, v, groupName, mode), string(mode))
	if err == nil || !telegram.IsUnparsable(err) {
		return err
	}

	log.Printf("render: parse error for node %d in chat %d, retrying without formatting: %v", n.ID, n.ChatID, err)
	return op(Format(n.Text, v, groupName, tree.ModePlain), "")
}

// Show renders a node onto the message a button press arrived on. The
// decision table:
//
//	node has image + message is photo  -> edit caption
//	node has image + message is text   -> send new photo
//	node is text   + message is photo  -> send new text message
//	node is text   + message is text   -> edit text
//
// A photo message cannot become a text message by editing, nor the reverse,
// which is why the mixed cases send fresh messages.
func (r *Renderer) Show(ctx context.Context, t Target, n *tree.Node, v Viewer, groupName string) error {
	kb := BuildKeyboard(n)

	var op mutation
	switch {
	case n.ImageURL != "" && t.IsPhoto:
		op = func(text, pm string) error {
			return r.editRecover(ctx, t, func() error {
				return r.tg.EditCaption(ctx, t.ChatID, t.MessageID, text, kb, pm)
			})
		}
	case n.ImageURL != "":
		op = func(text, pm string) error {
			return r.tg.SendPhoto(ctx, t.ChatID, t.ThreadID, n.ImageURL, text, kb, pm)
		}
	case t.IsPhoto:
		op = func(text, pm string) error {
			return r.tg.SendText(ctx, t.ChatID, t.ThreadID, text, kb, pm)
		}
	default:
		op = func(text, pm string) error {
			return r.editRecover(ctx, t, func() error {
				return r.tg.EditText(ctx, t.ChatID, t.MessageID, text, kb, pm)
			})
		}
	}

	err := r.apply(n, v, groupName, op)
	if err != nil {
		log.Printf("render: show node %d chat %d failed: %v", n.ID, n.ChatID, err)
		if t.CallbackID != "" {
			// Terminal user-visible error; internal detail stays in the log.
			_ = r.tg.AnswerCallback(ctx, t.CallbackID, "❌ Error mostrando contenido", true)
		}
	}
	return err
}

// Send renders a node as a brand-new message. This is the delivery path: it
// never edits, but shares the parse-mode fallback with Show.
func (r *Renderer) Send(ctx context.Context, chatID int64, threadID int, n *tree.Node, v Viewer, groupName string) error {
	kb := BuildKeyboard(n)
	return r.apply(n, v, groupName, func(text, pm string) error {
		if n.ImageURL != "" {
			return r.tg.SendPhoto(ctx, chatID, threadID, n.ImageURL, text, kb, pm)
		}
		return r.tg.SendText(ctx, chatID, threadID, text, kb, pm)
	})
}

// editRecover swallows the benign "message is not modified" rejection,
// surfacing it to the user as a toast instead of an error.
func (r *Renderer) editRecover(ctx context.Context, t Target, edit func() error) error {
	err := edit()
	if err != nil && telegram.IsNotModified(err) {
		if t.CallbackID != "" {
			_ = r.tg.AnswerCallback(ctx, t.CallbackID, "✅ Contenido ya actualizado", false)
		}
		return nil
	}
	return err
}

// SafeEditText edits an arbitrary message with the same recovery rules as
// Show: not-modified is benign, unparsable text is retried once without
// formatting. The admin panel screens use this for every in-place update.
func (r *Renderer) SafeEditText(ctx context.Context, t Target, text string, kb *telegram.InlineKeyboardMarkup, parseMode string) error {
	err := r.editRecover(ctx, t, func() error {
		return r.tg.EditText(ctx, t.ChatID, t.MessageID, text, kb, parseMode)
	})
	if err == nil || !telegram.IsUnparsable(err) {
		return err
	}
	return r.editRecover(ctx, t, func() error {
		return r.tg.EditText(ctx, t.ChatID, t.MessageID, text, kb, "")
	})
}
