package session

import (
	"context"
	"fmt"
	"log"
	"strings"

	"adminbot/action"
	"adminbot/render"
	"adminbot/telegram"
	"adminbot/tree"
)

// NodeStore is the slice of the document store the wizards mutate. Nodes are
// always re-fetched before mutation; the wizard never caches node contents
// across steps.
type NodeStore interface {
	GetNode(ctx context.Context, id int64) (*tree.Node, error)
	SetButtons(ctx context.Context, id int64, rows []tree.Row) error
	UpdateText(ctx context.Context, id int64, text string) error
	UpdateImage(ctx context.Context, id int64, imageURL string) error
	AddChildNode(ctx context.Context, chatID, parentID int64, text string, mode tree.ParseMode) (int64, error)
	EnsureRoot(ctx context.Context, chatID int64) (int64, error)
	SetWelcomeMessage(ctx context.Context, chatID int64, text string) error
}

// Replier sends wizard feedback to the chat the admin is typing in.
type Replier interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string, markup *telegram.InlineKeyboardMarkup, parseMode string) error
}

// Wizard advances pending operations on free-text and photo replies.
type Wizard struct {
	pending *Pending
	store   NodeStore
	tg      Replier
}

// NewWizard wires the state machine to its collaborators.
func NewWizard(pending *Pending, store NodeStore, tg Replier) *Wizard {
	return &Wizard{pending: pending, store: store, tg: tg}
}

// Start replaces the user's pending operation with a fresh wizard step.
func (w *Wizard) Start(userID int64, op Op) {
	unlock := w.pending.Lock(userID)
	defer unlock()
	w.pending.Set(userID, op)
}

// HandleText advances the user's wizard with a text reply. It reports whether
// the message was consumed; false means no wizard was pending and the message
// belongs to someone else. A failure while advancing clears the pending
// operation so a wizard can never wedge a user.
func (w *Wizard) HandleText(ctx context.Context, userID, chatID int64, text string) (bool, error) {
	unlock := w.pending.Lock(userID)
	defer unlock()

	op, ok := w.pending.Get(userID)
	if !ok {
		return false, nil
	}

	if err := w.advanceText(ctx, userID, chatID, op, strings.TrimSpace(text)); err != nil {
		log.Printf("session: wizard step %d failed for user %d chat %d: %v", op.Step, userID, op.ChatID, err)
		w.pending.Clear(userID)
		w.reply(ctx, chatID, "❌ Error procesando la entrada. Inténtalo de nuevo.")
		return true, err
	}
	return true, nil
}

// HandlePhoto feeds a photo reply into the wizard. Only the set-image step
// accepts photos; Telegram lists resolution variants smallest first and the
// largest one is stored.
func (w *Wizard) HandlePhoto(ctx context.Context, userID, chatID int64, photos []telegram.PhotoSize) (bool, error) {
	unlock := w.pending.Lock(userID)
	defer unlock()

	op, ok := w.pending.Get(userID)
	if !ok || op.Step != StepNodeImage || len(photos) == 0 {
		return false, nil
	}

	fileID := photos[len(photos)-1].FileID
	if err := w.store.UpdateImage(ctx, op.NodeID, fileID); err != nil {
		log.Printf("session: saving image for node %d failed: %v", op.NodeID, err)
		w.pending.Clear(userID)
		w.reply(ctx, chatID, "❌ No se pudo guardar la imagen. Inténtalo de nuevo.")
		return true, err
	}

	w.pending.Clear(userID)
	w.reply(ctx, chatID, "✅ Imagen actualizada para el nodo.")
	return true, nil
}

func (w *Wizard) advanceText(ctx context.Context, userID, chatID int64, op Op, text string) error {
	switch op.Step {
	case StepURLButtonText:
		op.ButtonText = text
		op.Step = StepURLButtonURL
		w.pending.Set(userID, op)
		w.reply(ctx, chatID,
			"🔗 Configurar URL del botón\n\n"+
				"Ahora envía la URL completa (debe comenzar con http:// o https://)\n\n"+
				"Escribe 'cancelar' para cancelar la operación.")
		return nil

	case StepURLButtonURL:
		return w.collectButtonURL(ctx, userID, chatID, op, text)

	case StepSubmenuButtonText:
		op.ButtonText = text
		op.Step = StepChildNodeText
		w.pending.Set(userID, op)
		w.reply(ctx, chatID,
			"📝 Contenido del submenú\n\n"+
				"Ahora envía el texto que se mostrará cuando se abra este submenú.\n"+
				"Puedes usar {mention}, {name}, {username} y {group_name}.")
		return nil

	case StepChildNodeText:
		return w.createChildNode(ctx, userID, chatID, op, text)

	case StepNodeImage:
		switch strings.ToLower(text) {
		case "remove", "quitar", "eliminar":
			if err := w.store.UpdateImage(ctx, op.NodeID, ""); err != nil {
				return err
			}
			w.pending.Clear(userID)
			w.reply(ctx, chatID, "✅ Imagen eliminada del nodo.")
		default:
			if err := w.store.UpdateImage(ctx, op.NodeID, text); err != nil {
				return err
			}
			w.pending.Clear(userID)
			w.reply(ctx, chatID, "✅ Imagen actualizada para el nodo.")
		}
		return nil

	case StepNodeRename:
		if err := w.store.UpdateText(ctx, op.NodeID, text); err != nil {
			return err
		}
		w.pending.Clear(userID)
		w.reply(ctx, chatID, fmt.Sprintf("✅ Texto del nodo actualizado\n\nNuevo contenido: %s", truncate(text, 200)))
		return nil

	case StepWelcomeMessage:
		return w.updateWelcomeMessage(ctx, userID, chatID, op, text)
	}

	// Unknown step: stale entry, drop it.
	w.pending.Clear(userID)
	return nil
}

func (w *Wizard) collectButtonURL(ctx context.Context, userID, chatID int64, op Op, text string) error {
	switch strings.ToLower(text) {
	case "cancelar", "cancel":
		w.pending.Clear(userID)
		w.reply(ctx, chatID, "❌ Operación cancelada.")
		return nil
	}

	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		// Validation failure keeps the wizard in this step so the admin
		// can retry.
		w.reply(ctx, chatID,
			"⚠️ URL inválida\n\n"+
				"La URL debe comenzar con http:// o https://\n"+
				"Inténtalo de nuevo o escribe 'cancelar'.")
		return nil
	}

	node, err := w.store.GetNode(ctx, op.NodeID)
	if err != nil {
		return err
	}
	label := op.ButtonText
	if label == "" {
		label = tree.DefaultURLLabel
	}
	rows := append(node.Buttons, tree.Row{tree.URLButton(label, text)})
	if err := w.store.SetButtons(ctx, op.NodeID, rows); err != nil {
		return err
	}

	w.pending.Clear(userID)
	w.reply(ctx, chatID, fmt.Sprintf("✅ Botón URL añadido\n\nTexto: %s\nURL: %s", label, text))
	return nil
}

func (w *Wizard) createChildNode(ctx context.Context, userID, chatID int64, op Op, text string) error {
	parent, err := w.store.GetNode(ctx, op.NodeID)
	if err != nil {
		return err
	}

	childID, err := w.store.AddChildNode(ctx, parent.ChatID, parent.ID, text, parent.ParseMode)
	if err != nil {
		return err
	}

	label := op.ButtonText
	if label == "" {
		label = "Ver más"
	}
	rows := append(parent.Buttons, tree.Row{tree.NodeButton(label, childID)})
	if err := w.store.SetButtons(ctx, parent.ID, rows); err != nil {
		return err
	}

	w.pending.Clear(userID)

	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "➕ Añadir Botón URL", CallbackData: action.NodeAddURLLink(childID)}},
		{{Text: "➕ Añadir Submenú", CallbackData: action.NodeAddSubLink(childID)}},
		{{Text: "⚙️ Gestionar Submenú", CallbackData: action.NodeManagerLink(parent.ChatID, childID)}},
		{{Text: "✅ Finalizar", CallbackData: action.NodeManagerLink(parent.ChatID, parent.ID)}},
	}}
	w.replyKb(ctx, chatID, fmt.Sprintf(
		"✅ Submenú creado exitosamente\n\nBotón: %s\nContenido: %s\n\n¿Deseas configurar este submenú?",
		label, truncate(text, 100)), kb)
	return nil
}

func (w *Wizard) updateWelcomeMessage(ctx context.Context, userID, chatID int64, op Op, text string) error {
	if err := w.store.SetWelcomeMessage(ctx, op.ChatID, text); err != nil {
		return err
	}
	rootID, err := w.store.EnsureRoot(ctx, op.ChatID)
	if err != nil {
		return err
	}
	if err := w.store.UpdateText(ctx, rootID, text); err != nil {
		return err
	}

	w.pending.Clear(userID)

	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "➕ Añadir Botón URL", CallbackData: action.NodeAddURLLink(rootID)}},
		{{Text: "➕ Añadir Submenú", CallbackData: action.NodeAddSubLink(rootID)}},
		{{Text: "✅ Finalizar", CallbackData: action.ConfigWelcomeLink(op.ChatID)}},
	}}
	w.replyKb(ctx, chatID, "✅ Mensaje de bienvenida actualizado\n\n¿Deseas añadir botones interactivos?", kb)
	return nil
}

func (w *Wizard) reply(ctx context.Context, chatID int64, text string) {
	w.replyKb(ctx, chatID, text, nil)
}

func (w *Wizard) replyKb(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboardMarkup) {
	if err := w.tg.SendText(ctx, chatID, 0, text, kb, ""); err != nil {
		log.Printf("session: reply to chat %d failed: %v", chatID, err)
	}
}

func truncate(s string, max int) string {
	return render.Truncate(s, max)
}
