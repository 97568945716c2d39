// Package welcome reacts to join events: it greets new members with the
// chat's configured content tree and registers chats the bot itself is added
// to.
package welcome

import (
	"context"
	"fmt"
	"log"
	"time"

	"adminbot/action"
	"adminbot/render"
	"adminbot/store"
	"adminbot/telegram"
	"adminbot/tree"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetWelcomeSettings(ctx context.Context, chatID int64) (store.WelcomeSettings, error)
	EnsureRoot(ctx context.Context, chatID int64) (int64, error)
	GetRootNode(ctx context.Context, chatID int64) (*tree.Node, error)
	IsNewMember(ctx context.Context, chatID, userID int64) (bool, error)
	MarkSeen(ctx context.Context, chatID, userID int64) error
	IncrementWelcomed(ctx context.Context, chatID int64) error
	AddGroup(ctx context.Context, g store.Group) error
}

// Sender delivers rendered nodes. *render.Renderer satisfies it.
type Sender interface {
	Send(ctx context.Context, chatID int64, threadID int, n *tree.Node, v render.Viewer, groupName string) error
}

// Notifier is the slice of the Bot API used outside of node rendering.
type Notifier interface {
	GetChat(ctx context.Context, chatID int64) (telegram.Chat, error)
	GetChatMemberCount(ctx context.Context, chatID int64) (int, error)
	SendText(ctx context.Context, chatID int64, threadID int, text string, markup *telegram.InlineKeyboardMarkup, parseMode string) error
}

// Pipeline handles new_chat_members events.
type Pipeline struct {
	store   Store
	sender  Sender
	tg      Notifier
	adminID int64
	botID   int64
}

func NewPipeline(st Store, sender Sender, tg Notifier, adminID, botID int64) *Pipeline {
	return &Pipeline{store: st, sender: sender, tg: tg, adminID: adminID, botID: botID}
}

// HandleJoin processes one join event. When the bot itself is among the new
// members the event registers the group and nothing else; otherwise each new
// member gets a welcome. Per-member failures are logged and do not stop the
// rest of the batch.
func (p *Pipeline) HandleJoin(ctx context.Context, msg *telegram.Message) error {
	if msg == nil || len(msg.NewChatMembers) == 0 {
		return nil
	}
	for _, m := range msg.NewChatMembers {
		if m.ID == p.botID {
			return p.botAdded(ctx, msg)
		}
	}
	return p.deliver(ctx, msg)
}

// botAdded registers the chat, notifies the operator and posts a short
// introduction in the group.
func (p *Pipeline) botAdded(ctx context.Context, msg *telegram.Message) error {
	chat := msg.Chat
	log.Printf("welcome: bot added to group %q (%d)", chat.Title, chat.ID)

	title := chat.Title
	isForum := chat.IsForum
	if live, err := p.tg.GetChat(ctx, chat.ID); err == nil {
		if live.Title != "" {
			title = live.Title
		}
		isForum = live.IsForum
	} else {
		log.Printf("welcome: getChat %d failed, using event data: %v", chat.ID, err)
	}
	memberCount, err := p.tg.GetChatMemberCount(ctx, chat.ID)
	if err != nil {
		log.Printf("welcome: getChatMemberCount %d failed: %v", chat.ID, err)
		memberCount = 0
	}

	g := store.Group{
		ChatID:      chat.ID,
		Title:       title,
		Type:        chat.Type,
		MemberCount: memberCount,
		IsForum:     isForum,
	}
	adderName := "Desconocido"
	adderUsername := "-"
	if msg.From != nil {
		g.AddedBy = msg.From.ID
		adderName = msg.From.FirstName
		if msg.From.Username != "" {
			adderUsername = "@" + msg.From.Username
		}
	}
	if err := p.store.AddGroup(ctx, g); err != nil {
		return fmt.Errorf("welcome: register group %d: %w", chat.ID, err)
	}

	forum := "❌ No"
	if isForum {
		forum = "✅ Sí"
	}
	if p.adminID == 0 {
		return p.sendIntro(ctx, chat.ID, msg.MessageThreadID)
	}
	notification := fmt.Sprintf(
		"🆕 *Nuevo Grupo Añadido*\n\n"+
			"📍 *Grupo:* %s\n"+
			"🆔 *ID:* `%d`\n"+
			"👤 *Añadido por:* %s\n"+
			"📱 *Username:* %s\n"+
			"👥 *Miembros:* %d\n"+
			"💬 *Temas habilitados:* %s\n"+
			"📅 *Fecha:* %s",
		title, chat.ID, adderName, adderUsername, memberCount, forum,
		time.Now().Format("02/01/2006 15:04"))
	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "⚙️ Configurar Grupo", CallbackData: action.ConfigGroupLink(chat.ID)}},
	}}
	if err := p.tg.SendText(ctx, p.adminID, 0, notification, kb, "Markdown"); err != nil {
		log.Printf("welcome: operator notification failed: %v", err)
	}
	return p.sendIntro(ctx, chat.ID, msg.MessageThreadID)
}

func (p *Pipeline) sendIntro(ctx context.Context, chatID int64, threadID int) error {
	intro := "🎉 *¡Hola! Soy tu nuevo Bot Administrador*\n\n" +
		"*¿Qué puedo hacer?*\n" +
		"• Mensajes de bienvenida personalizados\n" +
		"• Botones y menús interactivos\n" +
		"• Configuración avanzada por grupo\n" +
		"• Soporte para temas/hilos\n\n" +
		"*Para comenzar:*\n" +
		"Los administradores pueden usar /admin para configurarme.\n\n" +
		"¡Gracias por añadirme al grupo! 🤖"
	if err := p.tg.SendText(ctx, chatID, threadID, intro, nil, "Markdown"); err != nil {
		log.Printf("welcome: group introduction failed: %v", err)
	}
	return nil
}

// deliver sends the configured welcome to every new member of the event.
func (p *Pipeline) deliver(ctx context.Context, msg *telegram.Message) error {
	chatID := msg.Chat.ID

	cfg, err := p.store.GetWelcomeSettings(ctx, chatID)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		log.Printf("welcome: disabled for chat %d, skipping", chatID)
		return nil
	}

	if _, err := p.store.EnsureRoot(ctx, chatID); err != nil {
		return err
	}
	root, err := p.store.GetRootNode(ctx, chatID)
	if err != nil {
		return fmt.Errorf("welcome: root of chat %d: %w", chatID, err)
	}

	// A configured forum topic wins over the thread the event arrived in.
	threadID := msg.MessageThreadID
	if cfg.ThreadID != nil {
		threadID = *cfg.ThreadID
	}

	for _, member := range msg.NewChatMembers {
		if member.ID == p.botID {
			continue
		}
		if cfg.Mode == "new_only" {
			isNew, err := p.store.IsNewMember(ctx, chatID, member.ID)
			if err != nil {
				log.Printf("welcome: seen check for user %d in chat %d: %v", member.ID, chatID, err)
				continue
			}
			if !isNew {
				log.Printf("welcome: user %d already seen in chat %d, skipping", member.ID, chatID)
				continue
			}
		}
		if err := p.store.MarkSeen(ctx, chatID, member.ID); err != nil {
			log.Printf("welcome: mark seen for user %d in chat %d: %v", member.ID, chatID, err)
		}

		viewer := render.Viewer{ID: member.ID, Name: displayName(member), Username: member.Username}
		if err := p.sender.Send(ctx, chatID, threadID, root, viewer, msg.Chat.Title); err != nil {
			log.Printf("welcome: delivery to user %d in chat %d failed: %v", member.ID, chatID, err)
			continue
		}
		if err := p.store.IncrementWelcomed(ctx, chatID); err != nil {
			log.Printf("welcome: counting delivery in chat %d: %v", chatID, err)
		}
	}
	return nil
}

func displayName(u telegram.User) string {
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}
