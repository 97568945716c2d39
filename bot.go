package main

import (
	"context"
	"log"
	"strings"

	"adminbot/action"
	"adminbot/render"
	"adminbot/session"
	"adminbot/store"
	"adminbot/telegram"
	"adminbot/tree"
	"adminbot/welcome"
)

// Bot wires the transport, store and feature components together and routes
// incoming updates to them.
type Bot struct {
	cfg      Config
	tg       *telegram.Client
	store    *store.Store
	renderer *render.Renderer
	wizard   *session.Wizard
	welcome  *welcome.Pipeline
	me       telegram.User
}

func NewBot(cfg Config, tg *telegram.Client, st *store.Store, me telegram.User) *Bot {
	renderer := render.New(tg)
	return &Bot{
		cfg:      cfg,
		tg:       tg,
		store:    st,
		renderer: renderer,
		wizard:   session.NewWizard(session.NewPending(), st, tg),
		welcome:  welcome.NewPipeline(st, renderer, tg, cfg.AdminID, me.ID),
		me:       me,
	}
}

// HandleUpdate routes one polled update.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	log.Printf("callback %q from user %d", q.Data, q.From.ID)
	b.answer(ctx, q.ID, "", false)

	act := action.Decode(q.Data)
	if act.Kind == action.KindNone {
		// Stale button from an old message; nothing to do.
		return
	}

	if act.Public() {
		b.showNode(ctx, q, act)
		return
	}

	if q.From.ID != b.cfg.AdminID {
		b.editPanel(ctx, q,
			"❌ *Acceso Denegado*\n\nNo tienes permisos para realizar esta acción.", nil)
		return
	}
	b.dispatchAdmin(ctx, q, act)
}

// showNode renders welcome-tree navigation in place.
func (b *Bot) showNode(ctx context.Context, q *telegram.CallbackQuery, act action.Action) {
	var (
		node *tree.Node
		err  error
	)
	if act.Kind == action.KindShowRoot {
		node, err = b.store.GetRootNode(ctx, act.ChatID)
	} else {
		node, err = b.store.GetNode(ctx, act.NodeID)
	}
	if err != nil {
		log.Printf("navigation target missing (%s): %v", q.Data, err)
		b.answer(ctx, q.ID, "❌ Contenido no disponible", true)
		return
	}
	if q.Message == nil {
		return
	}
	if err := b.renderer.Show(ctx, callbackTarget(q), node, viewerFrom(q.From), q.Message.Chat.Title); err != nil {
		log.Printf("showing node %d in chat %d: %v", node.ID, q.Message.Chat.ID, err)
	}
}

func (b *Bot) dispatchAdmin(ctx context.Context, q *telegram.CallbackQuery, act action.Action) {
	switch act.Kind {
	case action.KindAdminPanel:
		b.showAdminPanel(ctx, q)
	case action.KindViewGroups:
		b.showGroupsList(ctx, q)
	case action.KindBotInfo:
		b.showBotInfo(ctx, q)
	case action.KindManageWelcomes:
		b.showManageWelcomes(ctx, q)
	case action.KindGlobalSettings:
		b.showGlobalSettings(ctx, q)
	case action.KindGeneralStats:
		b.showGeneralStats(ctx, q)
	case action.KindConfigWelcome:
		b.showWelcomeConfig(ctx, q, act.ChatID)
	case action.KindGroupSettings, action.KindConfigGroup:
		b.showGroupSettings(ctx, q, act.ChatID)
	case action.KindGroupStats:
		b.showGroupStats(ctx, q, act.ChatID)
	case action.KindTestWelcome:
		b.testWelcome(ctx, q, act.ChatID)
	case action.KindEditButtons:
		b.showNodeManager(ctx, q, act.ChatID, 0)
	case action.KindEditMessage:
		b.startWelcomeMessageEdit(ctx, q, act.ChatID)
	case action.KindEditImage:
		b.startWelcomeImageEdit(ctx, q, act.ChatID)
	case action.KindToggleWelcome:
		b.toggleWelcome(ctx, q, act.ChatID)
	case action.KindWelcomeMode:
		b.setWelcomeMode(ctx, q, act.ChatID, act.Value)
	case action.KindUpdateGroup, action.KindRefreshStats:
		b.refreshGroup(ctx, q, act)
	case action.KindDeactivateGroup:
		b.deactivateGroup(ctx, q, act.ChatID)
	case action.KindTopicHelp:
		b.showTopicHelp(ctx, q, act.ChatID)
	case action.KindNodeManager:
		b.showNodeManager(ctx, q, act.ChatID, act.NodeID)
	case action.KindNodeChildren:
		b.showNodeChildren(ctx, q, act.ChatID, act.NodeID)
	case action.KindNodeAddURL:
		b.startAddURLButton(ctx, q, act.NodeID)
	case action.KindNodeAddSub:
		b.startAddSubmenu(ctx, q, act.NodeID)
	case action.KindNodeRename:
		b.startNodeRename(ctx, q, act.NodeID)
	case action.KindNodeSetImage:
		b.startNodeImage(ctx, q, act.NodeID)
	case action.KindNodeParse:
		b.cycleParseMode(ctx, q, act.NodeID)
	case action.KindNodeClearBtns:
		b.clearNodeButtons(ctx, q, act.NodeID)
	case action.KindNodeDelete:
		b.deleteSubmenu(ctx, q, act.NodeID)
	case action.KindSetLanguage:
		b.setGlobalSetting(ctx, q, "language", act.Value)
	case action.KindSetDateFormat:
		b.setDateFormat(ctx, q, act.Value)
	case action.KindSetParseMode:
		b.setGlobalSetting(ctx, q, "default_parse_mode", act.Value)
	case action.KindBack:
		b.goBack(ctx, q, act.Value)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) {
	if len(m.NewChatMembers) > 0 {
		if err := b.welcome.HandleJoin(ctx, m); err != nil {
			log.Printf("join event in chat %d: %v", m.Chat.ID, err)
		}
		return
	}
	if m.From == nil {
		return
	}
	if strings.HasPrefix(m.Text, "/") {
		b.handleCommand(ctx, m)
		return
	}
	if len(m.Photo) > 0 {
		if _, err := b.wizard.HandlePhoto(ctx, m.From.ID, m.Chat.ID, m.Photo); err != nil {
			log.Printf("wizard photo from user %d: %v", m.From.ID, err)
		}
		return
	}
	if m.Text != "" {
		if _, err := b.wizard.HandleText(ctx, m.From.ID, m.Chat.ID, m.Text); err != nil {
			log.Printf("wizard text from user %d: %v", m.From.ID, err)
		}
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := b.tg.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		log.Printf("answerCallbackQuery: %v", err)
	}
}

func callbackTarget(q *telegram.CallbackQuery) render.Target {
	t := render.Target{CallbackID: q.ID}
	if q.Message != nil {
		t.ChatID = q.Message.Chat.ID
		t.MessageID = q.Message.MessageID
		t.ThreadID = q.Message.MessageThreadID
		t.IsPhoto = q.Message.HasPhoto()
	}
	return t
}

func viewerFrom(u telegram.User) render.Viewer {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return render.Viewer{ID: u.ID, Name: name, Username: u.Username}
}
