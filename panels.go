package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"adminbot/action"
	"adminbot/render"
	"adminbot/session"
	"adminbot/telegram"
	"adminbot/tree"
)

// Admin panel screens. Every screen edits the message the pressed button sits
// on, in Telegram's legacy Markdown, through the renderer's safe-edit path.

func cb(text, data string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: data}
}

func keyboard(rows ...[]telegram.InlineKeyboardButton) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func row(buttons ...telegram.InlineKeyboardButton) []telegram.InlineKeyboardButton {
	return buttons
}

func (b *Bot) editPanel(ctx context.Context, q *telegram.CallbackQuery, text string, kb *telegram.InlineKeyboardMarkup) {
	if q.Message == nil {
		return
	}
	if err := b.renderer.SafeEditText(ctx, callbackTarget(q), text, kb, "Markdown"); err != nil {
		log.Printf("panel edit failed (%s): %v", q.Data, err)
	}
}

func truncate(s string, max int) string {
	return render.Truncate(s, max)
}

// formatDate renders a stored RFC 3339 timestamp for panel display.
func formatDate(s string) string {
	if s == "" {
		return "Desconocido"
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if len(s) >= 10 {
			return s[:10]
		}
		return s
	}
	return t.Format("02/01/2006 15:04")
}

func yesNo(v bool) string {
	if v {
		return "✅ Sí"
	}
	return "❌ No"
}

func (b *Bot) showAdminPanel(ctx context.Context, q *telegram.CallbackQuery) {
	text := "🏠 *Panel de Administración Principal*\n\n" +
		"Bienvenido al sistema de control del bot administrador.\n\n" +
		"*Funciones disponibles:*\n" +
		"• Gestión completa de grupos\n" +
		"• Sistema de bienvenidas avanzado\n" +
		"• Configuración global del bot\n" +
		"• Estadísticas detalladas\n" +
		"• Monitoreo en tiempo real\n\n" +
		"Selecciona una opción para continuar:"

	b.editPanel(ctx, q, text, keyboard(
		row(cb("📊 Ver Grupos", "view_groups")),
		row(cb("🎉 Gestionar Bienvenidas", "manage_welcomes")),
		row(cb("⚙️ Configuraciones Globales", "global_settings")),
		row(cb("📈 Estadísticas Generales", "general_stats")),
		row(cb("ℹ️ Información del Bot", "bot_info")),
	))
}

func (b *Bot) showGroupsList(ctx context.Context, q *telegram.CallbackQuery) {
	groups, err := b.store.ListGroups(ctx)
	if err != nil {
		log.Printf("listing groups: %v", err)
		b.answer(ctx, q.ID, "❌ Error cargando grupos", true)
		return
	}
	if len(groups) == 0 {
		b.editPanel(ctx, q,
			"📭 *No hay grupos registrados*\n\n"+
				"Añade el bot a un grupo para comenzar a administrarlo.\n\n"+
				"*Instrucciones:*\n"+
				"1. Añade el bot a tu grupo\n"+
				"2. Dale permisos de administrador\n"+
				"3. Usa `/admin` para configurar",
			keyboard(row(cb("🔙 Volver", "admin_panel"))))
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 *Lista de Grupos Registrados*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, g := range groups {
		fmt.Fprintf(&sb, "*%d. %s*\n", i+1, g.Title)
		fmt.Fprintf(&sb, "   🆔 ID: `%d`\n", g.ChatID)
		fmt.Fprintf(&sb, "   👥 Miembros: %d\n", g.MemberCount)
		fmt.Fprintf(&sb, "   📅 Añadido: %s\n", formatDate(g.AddedAt))
		fmt.Fprintf(&sb, "   💬 Foro: %s\n\n", yesNo(g.IsForum))
		rows = append(rows, row(cb("⚙️ "+truncate(g.Title, 25), action.ConfigGroupLink(g.ChatID))))
	}
	rows = append(rows, row(cb("🔙 Volver al Panel", "admin_panel")))

	b.editPanel(ctx, q, sb.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (b *Bot) showBotInfo(ctx context.Context, q *telegram.CallbackQuery) {
	stats, err := b.store.GetGeneralStats(ctx)
	if err != nil {
		log.Printf("loading general stats: %v", err)
	}

	text := "ℹ️ *Información del Bot*\n\n" +
		"*Nombre:* Bot Administrador de Grupos\n" +
		"*Versión:* 2.0.0\n" +
		"*Estado:* ✅ Online\n\n" +
		"*Estadísticas:*\n" +
		fmt.Sprintf("• Grupos activos: %d\n", stats.ActiveGroups) +
		fmt.Sprintf("• Bienvenidas enviadas: %d\n", stats.TotalWelcomed) +
		"• Base de datos: Redis\n\n" +
		"*Funcionalidades:*\n" +
		"• Sistema de bienvenida avanzado\n" +
		"• Botones y submenús interactivos\n" +
		"• Soporte para imágenes y formatos\n" +
		"• Gestión completa de grupos\n" +
		"• Configuración de temas/hilos\n" +
		"• Modos de bienvenida personalizables\n" +
		"• Panel de administración completo\n" +
		"• Estadísticas en tiempo real"

	b.editPanel(ctx, q, text, keyboard(row(cb("🔙 Volver al Panel", "admin_panel"))))
}

func (b *Bot) showManageWelcomes(ctx context.Context, q *telegram.CallbackQuery) {
	groups, err := b.store.ListGroups(ctx)
	if err != nil {
		log.Printf("listing groups: %v", err)
		b.answer(ctx, q.ID, "❌ Error cargando grupos", true)
		return
	}
	if len(groups) == 0 {
		b.editPanel(ctx, q,
			"📭 *No hay grupos para gestionar*\n\n"+
				"Añade el bot a grupos para poder configurar sus bienvenidas.",
			keyboard(row(cb("🔙 Volver", "admin_panel"))))
		return
	}

	var sb strings.Builder
	sb.WriteString("🎉 *Gestión de Bienvenidas*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for _, g := range groups {
		cfg, err := b.store.GetWelcomeSettings(ctx, g.ChatID)
		if err != nil {
			log.Printf("welcome settings of chat %d: %v", g.ChatID, err)
		}
		status := "❌"
		if cfg.Enabled {
			status = "✅"
		}
		fmt.Fprintf(&sb, "%s *%s*\n", status, g.Title)
		rows = append(rows, row(cb(status+" "+truncate(g.Title, 25), action.ConfigWelcomeLink(g.ChatID))))
	}
	rows = append(rows, row(cb("🔙 Volver al Panel", "admin_panel")))

	b.editPanel(ctx, q, sb.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (b *Bot) showWelcomeConfig(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	if _, err := b.store.EnsureRoot(ctx, chatID); err != nil {
		log.Printf("ensuring root of chat %d: %v", chatID, err)
	}
	group, err := b.store.GetGroup(ctx, chatID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Grupo no encontrado.", nil)
		return
	}
	cfg, err := b.store.GetWelcomeSettings(ctx, chatID)
	if err != nil {
		log.Printf("welcome settings of chat %d: %v", chatID, err)
	}
	root, err := b.store.GetRootNode(ctx, chatID)
	if err != nil {
		log.Printf("root of chat %d: %v", chatID, err)
		root = &tree.Node{ChatID: chatID}
	}

	status := "❌ Desactivado"
	if cfg.Enabled {
		status = "✅ Activado"
	}
	modeText := "Siempre"
	if cfg.Mode == "new_only" {
		modeText = "Solo nuevos usuarios"
	}
	preview := truncate(root.Text, 120)
	if preview == "" {
		preview = "Sin mensaje"
	}
	hasImage := "❌ No"
	if root.ImageURL != "" {
		hasImage = "✅ Sí"
	}

	text := "🎉 *Configuración de Bienvenida*\n\n" +
		fmt.Sprintf("*Grupo:* %s\n", group.Title) +
		fmt.Sprintf("*Estado:* %s\n", status) +
		fmt.Sprintf("*Modo:* %s\n", modeText) +
		fmt.Sprintf("*Botones:* %d configurados\n", root.ButtonCount()) +
		fmt.Sprintf("*Imagen:* %s\n\n", hasImage) +
		"*Vista previa del mensaje:*\n" +
		fmt.Sprintf("_%s_", preview)

	b.editPanel(ctx, q, text, keyboard(
		row(cb("📝 Editar Mensaje", fmt.Sprintf("edit_welcome_message_%d", chatID))),
		row(cb("🔘 Gestionar Botones/Submenús", fmt.Sprintf("edit_welcome_buttons_%d", chatID))),
		row(cb("🖼️ Configurar Imagen", fmt.Sprintf("edit_welcome_image_%d", chatID))),
		row(
			cb("🔄 Siempre", action.WelcomeModeLink(chatID, "always")),
			cb("👤 Solo nuevos", action.WelcomeModeLink(chatID, "new_only")),
		),
		row(cb("🔄 Cambiar Estado", fmt.Sprintf("toggle_welcome_%d", chatID))),
		row(cb("🧪 Probar Bienvenida", fmt.Sprintf("test_welcome_%d", chatID))),
		row(cb("🔙 Volver", "manage_welcomes")),
	))
}

func (b *Bot) toggleWelcome(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	enabled, err := b.store.ToggleWelcome(ctx, chatID)
	if err != nil {
		log.Printf("toggling welcome of chat %d: %v", chatID, err)
		b.answer(ctx, q.ID, "❌ Error cambiando el estado", true)
		return
	}
	state := "desactivada"
	if enabled {
		state = "activada"
	}
	b.answer(ctx, q.ID, "✅ Bienvenida "+state, false)
	b.showWelcomeConfig(ctx, q, chatID)
}

func (b *Bot) setWelcomeMode(ctx context.Context, q *telegram.CallbackQuery, chatID int64, mode string) {
	if err := b.store.SetWelcomeMode(ctx, chatID, mode); err != nil {
		log.Printf("setting welcome mode of chat %d: %v", chatID, err)
		b.answer(ctx, q.ID, "❌ Error actualizando el modo", true)
		return
	}
	modeText := "siempre"
	if mode == "new_only" {
		modeText = "solo nuevos usuarios"
	}
	b.answer(ctx, q.ID, "✅ Modo actualizado: "+modeText, false)
	b.showWelcomeConfig(ctx, q, chatID)
}

// testWelcome delivers a preview of the configured welcome to the operator's
// private chat, through the same send path real welcomes use.
func (b *Bot) testWelcome(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	if _, err := b.store.EnsureRoot(ctx, chatID); err != nil {
		log.Printf("ensuring root of chat %d: %v", chatID, err)
	}
	root, err := b.store.GetRootNode(ctx, chatID)
	if err != nil {
		b.answer(ctx, q.ID, "❌ No hay configuración de bienvenida", true)
		return
	}
	groupName := "el grupo de prueba"
	if g, err := b.store.GetGroup(ctx, chatID); err == nil {
		groupName = g.Title
	}

	body := root.Text
	if body == "" {
		body = render.DefaultTemplate
	}
	preview := *root
	preview.Text = fmt.Sprintf("🧪 Vista previa de bienvenida\n📍 Grupo: %s\n\n%s", groupName, body)

	if err := b.renderer.Send(ctx, q.From.ID, 0, &preview, viewerFrom(q.From), groupName); err != nil {
		log.Printf("welcome preview for chat %d: %v", chatID, err)
		b.answer(ctx, q.ID, "❌ Error enviando vista previa", true)
		return
	}
	b.answer(ctx, q.ID, "✅ Vista previa enviada a tu chat privado", false)
}

func (b *Bot) showGroupSettings(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	// Refresh live info first; stale data is fine if the Bot API is down.
	if chat, err := b.tg.GetChat(ctx, chatID); err == nil {
		count, _ := b.tg.GetChatMemberCount(ctx, chatID)
		if err := b.store.UpdateGroupInfo(ctx, chatID, chat.Title, count); err != nil {
			log.Printf("refreshing group %d: %v", chatID, err)
		}
	} else {
		log.Printf("getChat %d: %v", chatID, err)
	}

	group, err := b.store.GetGroup(ctx, chatID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Grupo no encontrado.", nil)
		return
	}
	cfg, err := b.store.GetWelcomeSettings(ctx, chatID)
	if err != nil {
		log.Printf("welcome settings of chat %d: %v", chatID, err)
	}
	topic := "No configurado"
	if cfg.ThreadID != nil {
		topic = fmt.Sprintf("%d", *cfg.ThreadID)
	}

	text := "⚙️ *Configuraciones del Grupo*\n\n" +
		"*Información básica:*\n" +
		fmt.Sprintf("• Nombre: %s\n", group.Title) +
		fmt.Sprintf("• ID: `%d`\n", chatID) +
		fmt.Sprintf("• Tipo: %s\n", group.Type) +
		fmt.Sprintf("• Miembros: %d\n\n", group.MemberCount) +
		"*Configuración:*\n" +
		fmt.Sprintf("• Temas habilitados: %s\n", yesNo(group.IsForum)) +
		fmt.Sprintf("• Tema de bienvenidas: %s\n\n", topic) +
		"*Historial:*\n" +
		fmt.Sprintf("• Fecha de adición: %s", formatDate(group.AddedAt))

	b.editPanel(ctx, q, text, keyboard(
		row(cb("🎉 Configurar Bienvenida", action.ConfigWelcomeLink(chatID))),
		row(cb("📊 Ver Estadísticas", fmt.Sprintf("group_stats_%d", chatID))),
		row(cb("🧵 Configurar tema", fmt.Sprintf("set_welcome_topic_instr_%d", chatID))),
		row(cb("🔄 Actualizar Info", fmt.Sprintf("update_group_%d", chatID))),
		row(cb("❌ Desactivar Grupo", fmt.Sprintf("deactivate_group_%d", chatID))),
		row(cb("🔙 Volver", "view_groups")),
	))
}

func (b *Bot) showGroupStats(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	group, err := b.store.GetGroup(ctx, chatID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Grupo no encontrado.", nil)
		return
	}
	stats, err := b.store.GetGroupStats(ctx, chatID)
	if err != nil {
		log.Printf("stats of chat %d: %v", chatID, err)
	}

	daysActive := "N/D"
	if added, err := time.Parse(time.RFC3339, group.AddedAt); err == nil {
		daysActive = fmt.Sprintf("%d", int(time.Since(added).Hours()/24))
	}
	lastActivity := "Nunca"
	if stats.LastWelcome != "" {
		lastActivity = formatDate(stats.LastWelcome)
	}
	state := "❌ Inactivo"
	if group.Active {
		state = "✅ Activo"
	}

	text := "📈 *Estadísticas del Grupo*\n\n" +
		fmt.Sprintf("*%s*\n\n", group.Title) +
		"*Actividad:*\n" +
		fmt.Sprintf("• Días activo: %s\n", daysActive) +
		fmt.Sprintf("• Bienvenidas enviadas: %d\n", stats.Welcomed) +
		fmt.Sprintf("• Última actividad: %s\n\n", lastActivity) +
		"*Información actual:*\n" +
		fmt.Sprintf("• Miembros actuales: %d\n", group.MemberCount) +
		fmt.Sprintf("• Estado: %s\n", state) +
		fmt.Sprintf("• Tipo de chat: %s", group.Type)

	b.editPanel(ctx, q, text, keyboard(
		row(cb("🔄 Actualizar", fmt.Sprintf("refresh_stats_%d", chatID))),
		row(cb("🔙 Volver", fmt.Sprintf("group_settings_%d", chatID))),
	))
}

func (b *Bot) refreshGroup(ctx context.Context, q *telegram.CallbackQuery, act action.Action) {
	if chat, err := b.tg.GetChat(ctx, act.ChatID); err == nil {
		count, _ := b.tg.GetChatMemberCount(ctx, act.ChatID)
		if err := b.store.UpdateGroupInfo(ctx, act.ChatID, chat.Title, count); err != nil {
			log.Printf("refreshing group %d: %v", act.ChatID, err)
		}
	}
	b.answer(ctx, q.ID, "✅ Información actualizada", false)
	if act.Kind == action.KindRefreshStats {
		b.showGroupStats(ctx, q, act.ChatID)
	} else {
		b.showGroupSettings(ctx, q, act.ChatID)
	}
}

func (b *Bot) deactivateGroup(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	if err := b.store.DeactivateGroup(ctx, chatID); err != nil {
		log.Printf("deactivating group %d: %v", chatID, err)
		b.answer(ctx, q.ID, "❌ Error desactivando el grupo", true)
		return
	}
	b.answer(ctx, q.ID, "✅ Grupo desactivado", false)
	b.showGroupsList(ctx, q)
}

func (b *Bot) showTopicHelp(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	text := "🧵 *Configurar Tema de Bienvenida*\n\n" +
		"Para enviar las bienvenidas a un tema concreto del grupo:\n\n" +
		"1. Abre el tema deseado en el grupo\n" +
		"2. Ejecuta `/setwelcometopic` dentro del tema\n" +
		"3. ¡Listo!\n\n" +
		"Para volver a enviar las bienvenidas al chat principal usa " +
		"`/clearwelcometopic`."

	b.editPanel(ctx, q, text, keyboard(
		row(cb("🔙 Volver", fmt.Sprintf("group_settings_%d", chatID))),
	))
}

func (b *Bot) showGeneralStats(ctx context.Context, q *telegram.CallbackQuery) {
	stats, err := b.store.GetGeneralStats(ctx)
	if err != nil {
		log.Printf("loading general stats: %v", err)
		b.answer(ctx, q.ID, "❌ Error cargando estadísticas", true)
		return
	}
	avg := 0
	if stats.ActiveGroups > 0 {
		avg = stats.TotalMembers / stats.ActiveGroups
	}

	text := "📈 *Estadísticas Generales del Bot*\n\n" +
		"*Resumen:*\n" +
		fmt.Sprintf("• Grupos activos: %d\n", stats.ActiveGroups) +
		fmt.Sprintf("• Total bienvenidas: %d\n", stats.TotalWelcomed) +
		fmt.Sprintf("• Promedio de miembros: %d\n", avg)

	b.editPanel(ctx, q, text, keyboard(
		row(cb("🔄 Actualizar", "general_stats")),
		row(cb("🔙 Volver", "admin_panel")),
	))
}

func (b *Bot) showGlobalSettings(ctx context.Context, q *telegram.CallbackQuery) {
	settings, err := b.store.GetSettings(ctx)
	if err != nil {
		log.Printf("loading settings: %v", err)
	}

	text := "⚙️ *Configuraciones Globales*\n\n" +
		"*Configuración actual:*\n" +
		fmt.Sprintf("• Idioma: %s\n", strings.ToUpper(settings.Language)) +
		fmt.Sprintf("• Formato de fecha: `%s`\n", settings.DateFormat) +
		fmt.Sprintf("• Parse Mode por defecto: %s\n\n", settings.DefaultParseMode) +
		"Selecciona una opción para modificar:"

	b.editPanel(ctx, q, text, keyboard(
		row(cb("🌐 ES", "gs_lang_es"), cb("EN", "gs_lang_en")),
		row(
			cb("📅 DD/MM/YYYY HH:mm", "gs_datefmt_1"),
			cb("YYYY-MM-DD HH:mm", "gs_datefmt_2"),
			cb("DD/MM/YYYY", "gs_datefmt_3"),
		),
		row(cb("📝 HTML", "gs_parse_HTML"), cb("MarkdownV2", "gs_parse_MarkdownV2")),
		row(cb("🔙 Volver", "admin_panel")),
	))
}

func (b *Bot) setGlobalSetting(ctx context.Context, q *telegram.CallbackQuery, field, value string) {
	if err := b.store.SetSetting(ctx, field, value); err != nil {
		log.Printf("setting %s=%s: %v", field, value, err)
		b.answer(ctx, q.ID, "❌ Error guardando la configuración", true)
		return
	}
	b.answer(ctx, q.ID, "✅ Configuración guardada", false)
	b.showGlobalSettings(ctx, q)
}

var dateFormats = map[string]string{
	"1": "02/01/2006 15:04",
	"2": "2006-01-02 15:04",
	"3": "02/01/2006",
}

func (b *Bot) setDateFormat(ctx context.Context, q *telegram.CallbackQuery, choice string) {
	layout, ok := dateFormats[choice]
	if !ok {
		b.answer(ctx, q.ID, "❌ Formato desconocido", true)
		return
	}
	b.setGlobalSetting(ctx, q, "date_format", layout)
}

// showNodeManager is the per-node editing screen. nodeID 0 targets the chat's
// root.
func (b *Bot) showNodeManager(ctx context.Context, q *telegram.CallbackQuery, chatID, nodeID int64) {
	if _, err := b.store.EnsureRoot(ctx, chatID); err != nil {
		log.Printf("ensuring root of chat %d: %v", chatID, err)
	}
	var (
		node *tree.Node
		err  error
	)
	if nodeID == 0 {
		node, err = b.store.GetRootNode(ctx, chatID)
	} else {
		node, err = b.store.GetNode(ctx, nodeID)
	}
	if err != nil {
		b.editPanel(ctx, q, "❌ Nodo no encontrado.", nil)
		return
	}

	label := fmt.Sprintf("Submenú ID %d", node.ID)
	if node.IsRoot() {
		label = "Raíz (Principal)"
	}
	hasImage := "❌ No"
	if node.ImageURL != "" {
		hasImage = "✅ Sí"
	}

	var sb strings.Builder
	sb.WriteString("🔘 *Gestor de Botones y Submenús*\n\n")
	fmt.Fprintf(&sb, "*Nodo:* %s\n", label)
	fmt.Fprintf(&sb, "*Botones configurados:* %d\n", node.ButtonCount())
	fmt.Fprintf(&sb, "*Parse mode:* %s\n", parseModeLabel(node.ParseMode))
	fmt.Fprintf(&sb, "*Imagen:* %s\n\n", hasImage)

	if len(node.Buttons) > 0 {
		sb.WriteString("*Botones actuales:*\n")
		for i, btnRow := range node.Buttons {
			for j, btn := range btnRow {
				switch btn.Type {
				case tree.ButtonURL:
					fmt.Fprintf(&sb, "• [%d.%d] 🔗 %s → `%s`\n", i+1, j+1, btn.Text, btn.URL)
				case tree.ButtonNode:
					fmt.Fprintf(&sb, "• [%d.%d] 📁 %s → Submenú %d\n", i+1, j+1, btn.Text, btn.NodeID)
				}
			}
		}
	} else {
		sb.WriteString("_No hay botones configurados en este nodo._\n")
	}

	children, err := b.store.GetChildNodes(ctx, node.ChatID, node.ID)
	if err != nil {
		log.Printf("children of node %d: %v", node.ID, err)
	}
	if len(children) > 0 {
		fmt.Fprintf(&sb, "\n*Submenús hijos:* %d\n", len(children))
		for i, ch := range children {
			if i == 3 {
				fmt.Fprintf(&sb, "• ... y %d más\n", len(children)-3)
				break
			}
			fmt.Fprintf(&sb, "• Submenú %d: _%s_\n", ch.ID, truncate(ch.Text, 40))
		}
	}

	rows := [][]telegram.InlineKeyboardButton{
		row(
			cb("➕ Botón URL", action.NodeAddURLLink(node.ID)),
			cb("➕ Submenú", action.NodeAddSubLink(node.ID)),
		),
		row(
			cb("📝 Editar texto", fmt.Sprintf("node_rename_%d", node.ID)),
			cb("🖼️ Imagen", fmt.Sprintf("node_set_image_%d", node.ID)),
		),
		row(cb("🛠 Parse: "+parseModeLabel(node.ParseMode), fmt.Sprintf("node_parse_%d", node.ID))),
		row(cb("🧹 Limpiar botones", fmt.Sprintf("node_clear_btns_%d", node.ID))),
	}
	if !node.IsRoot() {
		rows = append(rows, row(cb("🗑️ Eliminar este submenú", fmt.Sprintf("node_del_%d", node.ID))))
	}
	if len(children) > 0 {
		rows = append(rows, row(cb("📂 Ver submenús", fmt.Sprintf("node_list_children_%d_%d", node.ChatID, node.ID))))
	}
	rows = append(rows, row(cb("🔙 Volver", action.ConfigWelcomeLink(chatID))))

	b.editPanel(ctx, q, sb.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
}

func parseModeLabel(pm tree.ParseMode) string {
	if pm == tree.ModePlain {
		return "Texto plano"
	}
	return string(pm)
}

func (b *Bot) showNodeChildren(ctx context.Context, q *telegram.CallbackQuery, chatID, nodeID int64) {
	children, err := b.store.GetChildNodes(ctx, chatID, nodeID)
	if err != nil {
		log.Printf("children of node %d: %v", nodeID, err)
		b.answer(ctx, q.ID, "❌ Error cargando submenús", true)
		return
	}

	var sb strings.Builder
	sb.WriteString("📂 *Submenús*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	if len(children) == 0 {
		sb.WriteString("_Este nodo no tiene submenús._\n")
	}
	for _, ch := range children {
		fmt.Fprintf(&sb, "• Submenú %d: _%s_\n", ch.ID, truncate(ch.Text, 60))
		rows = append(rows, row(cb(
			fmt.Sprintf("⚙️ Submenú %d", ch.ID),
			action.NodeManagerLink(chatID, ch.ID),
		)))
	}
	rows = append(rows, row(cb("🔙 Volver", action.NodeManagerLink(chatID, nodeID))))

	b.editPanel(ctx, q, sb.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (b *Bot) startAddURLButton(ctx context.Context, q *telegram.CallbackQuery, nodeID int64) {
	node, err := b.store.GetNode(ctx, nodeID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Nodo no encontrado.", nil)
		return
	}
	b.wizard.Start(q.From.ID, session.Op{
		Step:   session.StepURLButtonText,
		ChatID: node.ChatID,
		NodeID: nodeID,
	})
	b.editPanel(ctx, q,
		"🔘 *Añadir Botón URL*\n\n"+
			"*Paso 1 de 2:* Envía el texto que tendrá el botón.\n\n"+
			"Ejemplo: `Visitar sitio web`, `Más información`, etc.",
		keyboard(row(cb("❌ Cancelar", action.NodeManagerLink(node.ChatID, nodeID)))))
}

func (b *Bot) startAddSubmenu(ctx context.Context, q *telegram.CallbackQuery, nodeID int64) {
	node, err := b.store.GetNode(ctx, nodeID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Nodo no encontrado.", nil)
		return
	}
	b.wizard.Start(q.From.ID, session.Op{
		Step:   session.StepSubmenuButtonText,
		ChatID: node.ChatID,
		NodeID: nodeID,
	})
	b.editPanel(ctx, q,
		"📁 *Añadir Submenú*\n\n"+
			"*Paso 1 de 2:* Envía el texto del botón que abrirá el submenú.\n\n"+
			"Ejemplo: `Ver más opciones`, `Información adicional`, etc.",
		keyboard(row(cb("❌ Cancelar", action.NodeManagerLink(node.ChatID, nodeID)))))
}

func (b *Bot) startWelcomeMessageEdit(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	b.wizard.Start(q.From.ID, session.Op{Step: session.StepWelcomeMessage, ChatID: chatID})

	text := "📝 *Editar Mensaje de Bienvenida*\n\n" +
		"Envía el nuevo mensaje que se mostrará cuando alguien se una al grupo.\n\n" +
		"*Variables disponibles:*\n" +
		"• `{mention}` — menciona al usuario\n" +
		"• `{name}` — nombre del usuario\n" +
		"• `{username}` — @usuario o nombre si no tiene\n" +
		"• `{group_name}` — nombre del grupo\n\n" +
		"*Formatos soportados:*\n" +
		"• HTML: `<b>negrita</b>`, `<i>cursiva</i>`\n" +
		"• MarkdownV2: `**negrita**`, `*cursiva*`\n\n" +
		"*Ejemplo:*\n" +
		"`¡Bienvenido/a {mention} a {group_name}! 🎉`"

	b.editPanel(ctx, q, text, keyboard(row(cb("❌ Cancelar", action.ConfigWelcomeLink(chatID)))))
}

// startWelcomeImageEdit targets the chat's root node.
func (b *Bot) startWelcomeImageEdit(ctx context.Context, q *telegram.CallbackQuery, chatID int64) {
	rootID, err := b.store.EnsureRoot(ctx, chatID)
	if err != nil {
		log.Printf("ensuring root of chat %d: %v", chatID, err)
		b.answer(ctx, q.ID, "❌ Error preparando la configuración", true)
		return
	}
	b.startNodeImageFor(ctx, q, chatID, rootID, action.ConfigWelcomeLink(chatID))
}

func (b *Bot) startNodeImage(ctx context.Context, q *telegram.CallbackQuery, nodeID int64) {
	node, err := b.store.GetNode(ctx, nodeID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Nodo no encontrado.", nil)
		return
	}
	b.startNodeImageFor(ctx, q, node.ChatID, nodeID, action.NodeManagerLink(node.ChatID, nodeID))
}

func (b *Bot) startNodeImageFor(ctx context.Context, q *telegram.CallbackQuery, chatID, nodeID int64, cancel string) {
	b.wizard.Start(q.From.ID, session.Op{
		Step:   session.StepNodeImage,
		ChatID: chatID,
		NodeID: nodeID,
	})
	b.editPanel(ctx, q,
		"🖼️ *Configurar Imagen*\n\n"+
			"Envía una foto, o una URL de imagen.\n\n"+
			"Escribe `quitar` para eliminar la imagen actual.",
		keyboard(row(cb("❌ Cancelar", cancel))))
}

func (b *Bot) startNodeRename(ctx context.Context, q *telegram.CallbackQuery, nodeID int64) {
	node, err := b.store.GetNode(ctx, nodeID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Nodo no encontrado.", nil)
		return
	}
	b.wizard.Start(q.From.ID, session.Op{
		Step:   session.StepNodeRename,
		ChatID: node.ChatID,
		NodeID: nodeID,
	})
	b.editPanel(ctx, q,
		"📝 *Editar Texto del Nodo*\n\n"+
			"Envía el nuevo contenido para este nodo.\n\n"+
			"Puedes usar las variables `{mention}`, `{name}`, `{username}` y "+
			"`{group_name}`.",
		keyboard(row(cb("❌ Cancelar", action.NodeManagerLink(node.ChatID, nodeID)))))
}

func (b *Bot) cycleParseMode(ctx context.Context, q *telegram.CallbackQuery, nodeID int64) {
	node, err := b.store.GetNode(ctx, nodeID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Nodo no encontrado.", nil)
		return
	}
	var next tree.ParseMode
	switch node.ParseMode {
	case tree.ModeHTML:
		next = tree.ModeMarkdownV2
	case tree.ModeMarkdownV2:
		next = tree.ModePlain
	default:
		next = tree.ModeHTML
	}
	if err := b.store.SetParseMode(ctx, nodeID, next); err != nil {
		log.Printf("setting parse mode of node %d: %v", nodeID, err)
		b.answer(ctx, q.ID, "❌ Error cambiando el formato", true)
		return
	}
	b.answer(ctx, q.ID, "✅ Parse mode: "+parseModeLabel(next), false)
	b.showNodeManager(ctx, q, node.ChatID, nodeID)
}

func (b *Bot) clearNodeButtons(ctx context.Context, q *telegram.CallbackQuery, nodeID int64) {
	node, err := b.store.GetNode(ctx, nodeID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Nodo no encontrado.", nil)
		return
	}
	if err := b.store.SetButtons(ctx, nodeID, nil); err != nil {
		log.Printf("clearing buttons of node %d: %v", nodeID, err)
		b.answer(ctx, q.ID, "❌ Error limpiando botones", true)
		return
	}
	b.answer(ctx, q.ID, "✅ Botones eliminados", false)
	b.showNodeManager(ctx, q, node.ChatID, nodeID)
}

func (b *Bot) deleteSubmenu(ctx context.Context, q *telegram.CallbackQuery, nodeID int64) {
	node, err := b.store.GetNode(ctx, nodeID)
	if err != nil {
		b.editPanel(ctx, q, "❌ Nodo no encontrado.", nil)
		return
	}
	if node.IsRoot() {
		b.answer(ctx, q.ID, "❌ El nodo raíz no se puede eliminar", true)
		return
	}
	if err := b.store.DeleteNode(ctx, nodeID); err != nil {
		log.Printf("deleting node %d: %v", nodeID, err)
		b.answer(ctx, q.ID, "❌ Error eliminando el submenú", true)
		return
	}
	b.answer(ctx, q.ID, "✅ Submenú eliminado", false)
	b.showNodeManager(ctx, q, node.ChatID, *node.ParentID)
}

func (b *Bot) goBack(ctx context.Context, q *telegram.CallbackQuery, destination string) {
	switch destination {
	case "groups":
		b.showGroupsList(ctx, q)
	case "welcomes":
		b.showManageWelcomes(ctx, q)
	default:
		b.showAdminPanel(ctx, q)
	}
}
