package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"adminbot/store"
	"adminbot/telegram"
)

func (b *Bot) handleCommand(ctx context.Context, m *telegram.Message) {
	cmd := strings.Fields(m.Text)[0]
	cmd = strings.TrimSuffix(cmd, "@"+b.me.Username)

	switch cmd {
	case "/start":
		b.cmdStart(ctx, m)
	case "/admin":
		b.cmdAdmin(ctx, m)
	case "/setwelcometopic":
		b.cmdSetWelcomeTopic(ctx, m)
	case "/clearwelcometopic":
		b.cmdClearWelcomeTopic(ctx, m)
	}
}

func (b *Bot) reply(ctx context.Context, m *telegram.Message, text string, kb *telegram.InlineKeyboardMarkup) {
	if err := b.tg.SendText(ctx, m.Chat.ID, m.MessageThreadID, text, kb, "Markdown"); err != nil {
		log.Printf("replying in chat %d: %v", m.Chat.ID, err)
	}
}

func (b *Bot) cmdStart(ctx context.Context, m *telegram.Message) {
	if m.Chat.Type != "private" {
		b.reply(ctx, m,
			"🎉 *¡Bot Administrador activado!*\n\n"+
				"Los administradores pueden configurarme usando `/admin`\n\n"+
				"*Funciones disponibles:*\n"+
				"• Mensajes de bienvenida personalizados\n"+
				"• Botones y menús interactivos\n"+
				"• Configuración avanzada por grupo", nil)
		return
	}

	if m.From.ID == b.cfg.AdminID {
		b.reply(ctx, m,
			"🎯 *Panel de Control - Bot Administrador*\n\n"+
				"¡Bienvenido al sistema de administración!\n\n"+
				"*Funciones disponibles:*\n"+
				"• Gestión completa de grupos\n"+
				"• Sistema de bienvenidas avanzado\n"+
				"• Configuración de botones y submenús\n"+
				"• Estadísticas en tiempo real\n"+
				"• Soporte para temas/hilos\n\n"+
				"Selecciona una opción para comenzar:",
			keyboard(
				row(cb("🏠 Panel de Administración", "admin_panel")),
				row(cb("📊 Ver Grupos", "view_groups")),
				row(cb("🎉 Gestionar Bienvenidas", "manage_welcomes")),
				row(cb("ℹ️ Información del Bot", "bot_info")),
			))
		return
	}

	b.reply(ctx, m,
		"🤖 *Bot Administrador de Grupos*\n\n"+
			"¡Hola! Soy un bot especializado en la administración de grupos.\n\n"+
			"*Características principales:*\n"+
			"• Sistema de bienvenidas personalizable\n"+
			"• Botones y submenús interactivos\n"+
			"• Soporte para imágenes y formatos\n"+
			"• Configuración por grupo\n\n"+
			"Para comenzar, añádeme a tu grupo y usa el comando `/admin`", nil)
}

func (b *Bot) cmdAdmin(ctx context.Context, m *telegram.Message) {
	if m.Chat.Type == "private" {
		b.reply(ctx, m,
			"❌ Este comando solo funciona en grupos.\n\n"+
				"Si eres el administrador del bot, usa /start para acceder al panel principal.", nil)
		return
	}
	if !b.isGroupAdmin(ctx, m.Chat.ID, m.From.ID) {
		b.reply(ctx, m,
			"❌ *Acceso Denegado*\n\n"+
				"Solo los administradores del grupo pueden usar este comando.", nil)
		return
	}

	// Register the group on first contact so the operator panels can see it.
	if _, err := b.store.GetGroup(ctx, m.Chat.ID); errors.Is(err, store.ErrGroupNotFound) {
		count, err := b.tg.GetChatMemberCount(ctx, m.Chat.ID)
		if err != nil {
			log.Printf("getChatMemberCount %d: %v", m.Chat.ID, err)
		}
		g := store.Group{
			ChatID:      m.Chat.ID,
			Title:       m.Chat.Title,
			Type:        m.Chat.Type,
			AddedBy:     m.From.ID,
			MemberCount: count,
			IsForum:     m.Chat.IsForum,
		}
		if err := b.store.AddGroup(ctx, g); err != nil {
			log.Printf("registering group %d: %v", m.Chat.ID, err)
		} else {
			log.Printf("group %d registered via /admin", m.Chat.ID)
		}
	}

	b.reply(ctx, m,
		"🔧 *Panel de Administración del Grupo*\n\n"+
			fmt.Sprintf("*Grupo:* %s\n", m.Chat.Title)+
			fmt.Sprintf("*ID:* `%d`\n\n", m.Chat.ID)+
			"Selecciona una opción para configurar:",
		keyboard(
			row(cb("🎉 Configurar Bienvenida", fmt.Sprintf("config_welcome_%d", m.Chat.ID))),
			row(cb("⚙️ Configuraciones del Grupo", fmt.Sprintf("group_settings_%d", m.Chat.ID))),
			row(cb("📊 Estadísticas", fmt.Sprintf("group_stats_%d", m.Chat.ID))),
		))
}

func (b *Bot) cmdSetWelcomeTopic(ctx context.Context, m *telegram.Message) {
	if m.Chat.Type != "group" && m.Chat.Type != "supergroup" {
		b.reply(ctx, m, "❌ Este comando solo funciona dentro de un grupo.", nil)
		return
	}
	if !b.isGroupAdmin(ctx, m.Chat.ID, m.From.ID) {
		b.reply(ctx, m, "❌ Solo los administradores pueden configurar el tema de bienvenida.", nil)
		return
	}
	if !m.Chat.IsForum {
		b.reply(ctx, m,
			"ℹ️ *Información*\n\n"+
				"Este grupo no tiene temas habilitados.\n"+
				"No es necesario configurar un tema específico para las bienvenidas.", nil)
		return
	}
	if m.MessageThreadID == 0 {
		b.reply(ctx, m,
			"📍 *Configurar Tema de Bienvenida*\n\n"+
				"Para configurar el tema, ejecuta este comando *dentro del tema/hilo* "+
				"donde quieres que se envíen las bienvenidas.\n\n"+
				"1. Abre el tema deseado\n"+
				"2. Ejecuta `/setwelcometopic` dentro del tema\n"+
				"3. ¡Listo!", nil)
		return
	}

	if err := b.store.SetWelcomeThread(ctx, m.Chat.ID, m.MessageThreadID); err != nil {
		log.Printf("setting welcome thread of chat %d: %v", m.Chat.ID, err)
		b.reply(ctx, m, "❌ Error al configurar el tema. Inténtalo de nuevo.", nil)
		return
	}
	log.Printf("welcome thread of chat %d set to %d", m.Chat.ID, m.MessageThreadID)
	b.reply(ctx, m,
		"✅ *Tema Configurado*\n\n"+
			"Las bienvenidas se enviarán en este tema.\n"+
			fmt.Sprintf("*Thread ID:* `%d`\n\n", m.MessageThreadID)+
			"Para deshacer esta configuración, usa `/clearwelcometopic`", nil)
}

func (b *Bot) cmdClearWelcomeTopic(ctx context.Context, m *telegram.Message) {
	if m.Chat.Type != "group" && m.Chat.Type != "supergroup" {
		b.reply(ctx, m, "❌ Este comando solo funciona dentro de un grupo.", nil)
		return
	}
	if !b.isGroupAdmin(ctx, m.Chat.ID, m.From.ID) {
		b.reply(ctx, m, "❌ Solo los administradores pueden usar este comando.", nil)
		return
	}

	if err := b.store.ClearWelcomeThread(ctx, m.Chat.ID); err != nil {
		log.Printf("clearing welcome thread of chat %d: %v", m.Chat.ID, err)
		b.reply(ctx, m, "❌ Error al limpiar la configuración. Inténtalo de nuevo.", nil)
		return
	}
	b.reply(ctx, m,
		"✅ *Configuración Limpiada*\n\n"+
			"Se ha eliminado la configuración del tema de bienvenida.\n"+
			"Las bienvenidas se enviarán en el chat principal del grupo.", nil)
}

// isGroupAdmin reports whether the user may run group-scoped commands: the
// bot operator always can, otherwise the Bot API member status decides.
func (b *Bot) isGroupAdmin(ctx context.Context, chatID, userID int64) bool {
	if userID == b.cfg.AdminID {
		return true
	}
	member, err := b.tg.GetChatMember(ctx, chatID, userID)
	if err != nil {
		log.Printf("getChatMember %d/%d: %v", chatID, userID, err)
		return false
	}
	return member.Status == telegram.StatusCreator || member.Status == telegram.StatusAdministrator
}
