package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"adminbot/tree"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client, WithPrefix("test:"))
}

func TestEnsureRootIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureRoot(ctx, -100)
	if err != nil {
		t.Fatalf("first EnsureRoot: %v", err)
	}
	second, err := s.EnsureRoot(ctx, -100)
	if err != nil {
		t.Fatalf("second EnsureRoot: %v", err)
	}
	if first != second {
		t.Fatalf("root id changed: %d then %d", first, second)
	}

	root, err := s.GetRootNode(ctx, -100)
	if err != nil {
		t.Fatalf("GetRootNode: %v", err)
	}
	if root.ID != first || !root.IsRoot() || root.ParseMode != tree.ModeHTML {
		t.Fatalf("unexpected root: %+v", root)
	}

	other, err := s.EnsureRoot(ctx, -200)
	if err != nil {
		t.Fatalf("EnsureRoot other chat: %v", err)
	}
	if other == first {
		t.Fatal("chats must not share roots")
	}
}

func TestGetRootNodeMissingChat(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRootNode(context.Background(), -1); err != ErrNodeNotFound {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestNodeMutations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.EnsureRoot(ctx, -100)
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}

	if err := s.UpdateText(ctx, id, "hola"); err != nil {
		t.Fatalf("UpdateText: %v", err)
	}
	if err := s.UpdateImage(ctx, id, "file-123"); err != nil {
		t.Fatalf("UpdateImage: %v", err)
	}
	if err := s.SetParseMode(ctx, id, tree.ModeMarkdownV2); err != nil {
		t.Fatalf("SetParseMode: %v", err)
	}
	rows := []tree.Row{{tree.URLButton("Visit", "https://example.com")}}
	if err := s.SetButtons(ctx, id, rows); err != nil {
		t.Fatalf("SetButtons: %v", err)
	}

	n, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if n.Text != "hola" || n.ImageURL != "file-123" || n.ParseMode != tree.ModeMarkdownV2 {
		t.Fatalf("mutations lost: %+v", n)
	}
	if len(n.Buttons) != 1 || n.Buttons[0][0].URL != "https://example.com" {
		t.Fatalf("buttons lost: %v", n.Buttons)
	}

	if err := s.SetButtons(ctx, id, nil); err != nil {
		t.Fatalf("clear buttons: %v", err)
	}
	n, _ = s.GetNode(ctx, id)
	if len(n.Buttons) != 0 {
		t.Fatalf("buttons not cleared: %v", n.Buttons)
	}

	if err := s.UpdateText(ctx, 9999, "x"); err != ErrNodeNotFound {
		t.Fatalf("expected ErrNodeNotFound for unknown node, got %v", err)
	}
}

func TestChildNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, _ := s.EnsureRoot(ctx, -100)
	a, err := s.AddChildNode(ctx, -100, root, "A", tree.ModeHTML)
	if err != nil {
		t.Fatalf("AddChildNode: %v", err)
	}
	b, err := s.AddChildNode(ctx, -100, root, "B", tree.ModePlain)
	if err != nil {
		t.Fatalf("AddChildNode: %v", err)
	}

	children, err := s.GetChildNodes(ctx, -100, root)
	if err != nil {
		t.Fatalf("GetChildNodes: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	seen := map[int64]bool{}
	for _, c := range children {
		seen[c.ID] = true
		if c.ParentID == nil || *c.ParentID != root {
			t.Fatalf("child %d not linked to root: %+v", c.ID, c)
		}
	}
	if !seen[a] || !seen[b] {
		t.Fatalf("missing children, got %v", seen)
	}

	if _, err := s.AddChildNode(ctx, -100, 9999, "x", tree.ModeHTML); err != ErrNodeNotFound {
		t.Fatalf("expected ErrNodeNotFound for unknown parent, got %v", err)
	}
}

func TestDeleteNodeRemovesSubtreeAndParentButton(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, _ := s.EnsureRoot(ctx, -100)
	child, _ := s.AddChildNode(ctx, -100, root, "child", tree.ModeHTML)
	grandchild, _ := s.AddChildNode(ctx, -100, child, "grandchild", tree.ModeHTML)

	if err := s.SetButtons(ctx, root, []tree.Row{
		{tree.URLButton("Site", "https://example.com")},
		{tree.NodeButton("Child", child)},
	}); err != nil {
		t.Fatalf("SetButtons: %v", err)
	}

	if err := s.DeleteNode(ctx, child); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	if _, err := s.GetNode(ctx, child); err != ErrNodeNotFound {
		t.Fatalf("child survived deletion: %v", err)
	}
	if _, err := s.GetNode(ctx, grandchild); err != ErrNodeNotFound {
		t.Fatalf("grandchild survived deletion: %v", err)
	}

	rootNode, _ := s.GetNode(ctx, root)
	if len(rootNode.Buttons) != 1 || rootNode.Buttons[0][0].Type != tree.ButtonURL {
		t.Fatalf("parent button not pruned: %v", rootNode.Buttons)
	}

	children, _ := s.GetChildNodes(ctx, -100, root)
	if len(children) != 0 {
		t.Fatalf("children index not cleaned: %v", children)
	}

	if err := s.DeleteNode(ctx, root); err == nil {
		t.Fatal("root deletion must be refused")
	}
}

func TestWelcomeSettingsDefaultsAndUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg, err := s.GetWelcomeSettings(ctx, -100)
	if err != nil {
		t.Fatalf("GetWelcomeSettings: %v", err)
	}
	if !cfg.Enabled || cfg.Mode != "always" || cfg.ThreadID != nil {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	on, err := s.ToggleWelcome(ctx, -100)
	if err != nil || on {
		t.Fatalf("first toggle: on=%v err=%v", on, err)
	}
	on, err = s.ToggleWelcome(ctx, -100)
	if err != nil || !on {
		t.Fatalf("second toggle: on=%v err=%v", on, err)
	}

	if err := s.SetWelcomeMode(ctx, -100, "new_only"); err != nil {
		t.Fatalf("SetWelcomeMode: %v", err)
	}
	if err := s.SetWelcomeMessage(ctx, -100, "Hola {mention}"); err != nil {
		t.Fatalf("SetWelcomeMessage: %v", err)
	}
	if err := s.SetWelcomeThread(ctx, -100, 42); err != nil {
		t.Fatalf("SetWelcomeThread: %v", err)
	}

	cfg, _ = s.GetWelcomeSettings(ctx, -100)
	if !cfg.Enabled || cfg.Mode != "new_only" || cfg.Message != "Hola {mention}" {
		t.Fatalf("updates lost: %+v", cfg)
	}
	if cfg.ThreadID == nil || *cfg.ThreadID != 42 {
		t.Fatalf("thread not stored: %+v", cfg.ThreadID)
	}

	if err := s.ClearWelcomeThread(ctx, -100); err != nil {
		t.Fatalf("ClearWelcomeThread: %v", err)
	}
	cfg, _ = s.GetWelcomeSettings(ctx, -100)
	if cfg.ThreadID != nil {
		t.Fatalf("thread not cleared: %+v", cfg.ThreadID)
	}
}

func TestSeenMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	isNew, err := s.IsNewMember(ctx, -100, 7)
	if err != nil || !isNew {
		t.Fatalf("unseen user must be new: new=%v err=%v", isNew, err)
	}
	if err := s.MarkSeen(ctx, -100, 7); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	isNew, _ = s.IsNewMember(ctx, -100, 7)
	if isNew {
		t.Fatal("seen user must not be new")
	}
	isNew, _ = s.IsNewMember(ctx, -200, 7)
	if !isNew {
		t.Fatal("seen markers must be per chat")
	}
}

func TestWelcomeCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.IncrementWelcomed(ctx, -100); err != nil {
			t.Fatalf("IncrementWelcomed: %v", err)
		}
	}
	if err := s.IncrementWelcomed(ctx, -200); err != nil {
		t.Fatalf("IncrementWelcomed: %v", err)
	}

	st, err := s.GetGroupStats(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroupStats: %v", err)
	}
	if st.Welcomed != 3 || st.LastWelcome == "" {
		t.Fatalf("unexpected stats: %+v", st)
	}

	general, err := s.GetGeneralStats(ctx)
	if err != nil {
		t.Fatalf("GetGeneralStats: %v", err)
	}
	if general.TotalWelcomed != 4 {
		t.Fatalf("global counter expected 4, got %d", general.TotalWelcomed)
	}
}

func TestGroupRegistry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetGroup(ctx, -100); err != ErrGroupNotFound {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}

	g := Group{ChatID: -100, Title: "Grupo", Type: "supergroup", AddedBy: 1, MemberCount: 10, IsForum: true}
	if err := s.AddGroup(ctx, g); err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	if err := s.AddGroup(ctx, Group{ChatID: -200, Title: "Otro", Type: "group"}); err != nil {
		t.Fatalf("AddGroup: %v", err)
	}

	got, err := s.GetGroup(ctx, -100)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if !got.Active || !got.IsForum || got.AddedAt == "" {
		t.Fatalf("unexpected group: %+v", got)
	}
	firstAdded := got.AddedAt

	if err := s.UpdateGroupInfo(ctx, -100, "Grupo Renombrado", 25); err != nil {
		t.Fatalf("UpdateGroupInfo: %v", err)
	}
	got, _ = s.GetGroup(ctx, -100)
	if got.Title != "Grupo Renombrado" || got.MemberCount != 25 {
		t.Fatalf("info not refreshed: %+v", got)
	}

	// Re-registering keeps the original timestamp.
	if err := s.AddGroup(ctx, Group{ChatID: -100, Title: "Grupo Renombrado", Type: "supergroup"}); err != nil {
		t.Fatalf("re-AddGroup: %v", err)
	}
	got, _ = s.GetGroup(ctx, -100)
	if got.AddedAt != firstAdded {
		t.Fatalf("AddedAt changed on re-registration: %q vs %q", got.AddedAt, firstAdded)
	}

	groups, err := s.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 active groups, got %d", len(groups))
	}

	if err := s.DeactivateGroup(ctx, -200); err != nil {
		t.Fatalf("DeactivateGroup: %v", err)
	}
	groups, _ = s.ListGroups(ctx)
	if len(groups) != 1 || groups[0].ChatID != -100 {
		t.Fatalf("deactivated group still listed: %+v", groups)
	}

	st, err := s.GetGeneralStats(ctx)
	if err != nil {
		t.Fatalf("GetGeneralStats: %v", err)
	}
	if st.ActiveGroups != 1 || st.TotalMembers != 25 {
		t.Fatalf("unexpected general stats: %+v", st)
	}
}

func TestGlobalSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if cfg.Language != "es" || cfg.DefaultParseMode != "HTML" || cfg.DateFormat == "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	if err := s.SetSetting(ctx, "language", "en"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "default_parse_mode", "MarkdownV2"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	cfg, _ = s.GetSettings(ctx)
	if cfg.Language != "en" || cfg.DefaultParseMode != "MarkdownV2" {
		t.Fatalf("settings lost: %+v", cfg)
	}
}

func TestStoredButtonsToleratesLegacyPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.EnsureRoot(ctx, -100)
	// Hand-write a record whose buttons field is not a list.
	payload := fmt.Sprintf(`{"id":%d,"chat_id":-100,"text":"hola","buttons":{"bad":"shape"}}`, id)
	if err := s.client.Set(ctx, s.nodeKey(id), payload, 0).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if n.Text != "hola" || len(n.Buttons) != 0 {
		t.Fatalf("legacy payload must load with empty buttons: %+v", n)
	}
}

func TestChildNodesOrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, _ := s.EnsureRoot(ctx, -100)
	var want []int64
	for _, text := range []string{"primero", "segundo", "tercero", "cuarto", "quinto"} {
		id, err := s.AddChildNode(ctx, -100, root, text, tree.ModeHTML)
		if err != nil {
			t.Fatalf("AddChildNode(%q): %v", text, err)
		}
		want = append(want, id)
	}

	for i := 0; i < 5; i++ {
		children, err := s.GetChildNodes(ctx, -100, root)
		if err != nil {
			t.Fatalf("GetChildNodes: %v", err)
		}
		got := make([]int64, len(children))
		for j, c := range children {
			got[j] = c.ID
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d children, got %d", len(want), len(got))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("read %d: children out of creation order: got %v, want %v", i, got, want)
			}
		}
	}
}
