package action

import "testing"

func TestDecodeNavigation(t *testing.T) {
	a := Decode("wb_42")
	if a.Kind != KindShowNode || a.NodeID != 42 {
		t.Fatalf("wb_42 decoded to %+v", a)
	}
	if !a.Public() {
		t.Fatal("wb_ navigation must be public")
	}

	a = Decode("wb_home_-1001234")
	if a.Kind != KindShowRoot || a.ChatID != -1001234 {
		t.Fatalf("wb_home decoded to %+v", a)
	}
	if !a.Public() {
		t.Fatal("wb_home navigation must be public")
	}
}

func TestDecodeUnknownIsNoop(t *testing.T) {
	for _, raw := range []string{
		"",
		"bogus",
		"wb_",
		"wb_notanumber",
		"wb_1_2",
		"node_mgr_abc_2",
		"node_mgr_5",
		"config_welcome_x",
		"welcome_mode_12",
		"welcome_mode_abc_always",
	} {
		if a := Decode(raw); a.Kind != KindNone {
			t.Fatalf("Decode(%q) = %+v, want KindNone", raw, a)
		}
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	raws := []string{"wb_7", "node_mgr_-100_3", "welcome_mode_5_new_only", "junk"}
	for _, raw := range raws {
		first := Decode(raw)
		for i := 0; i < 3; i++ {
			if got := Decode(raw); got != first {
				t.Fatalf("Decode(%q) not deterministic: %+v vs %+v", raw, got, first)
			}
		}
	}
}

func TestDecodeAdminVerbs(t *testing.T) {
	cases := []struct {
		raw  string
		want Action
	}{
		{"admin_panel", Action{Kind: KindAdminPanel}},
		{"view_groups", Action{Kind: KindViewGroups}},
		{"manage_welcomes", Action{Kind: KindManageWelcomes}},
		{"config_welcome_-100500", Action{Kind: KindConfigWelcome, ChatID: -100500}},
		{"group_settings_9", Action{Kind: KindGroupSettings, ChatID: 9}},
		{"test_welcome_-3", Action{Kind: KindTestWelcome, ChatID: -3}},
		{"edit_welcome_buttons_8", Action{Kind: KindEditButtons, ChatID: 8}},
		{"edit_welcome_message_8", Action{Kind: KindEditMessage, ChatID: 8}},
		{"toggle_welcome_8", Action{Kind: KindToggleWelcome, ChatID: 8}},
		{"node_add_url_15", Action{Kind: KindNodeAddURL, NodeID: 15}},
		{"node_add_sub_15", Action{Kind: KindNodeAddSub, NodeID: 15}},
		{"node_rename_15", Action{Kind: KindNodeRename, NodeID: 15}},
		{"node_set_image_15", Action{Kind: KindNodeSetImage, NodeID: 15}},
		{"node_clear_btns_15", Action{Kind: KindNodeClearBtns, NodeID: 15}},
		{"node_del_15", Action{Kind: KindNodeDelete, NodeID: 15}},
		{"back_admin", Action{Kind: KindBack, Value: "admin"}},
		{"gs_parse_HTML", Action{Kind: KindSetParseMode, Value: "HTML"}},
	}
	for _, tc := range cases {
		if got := Decode(tc.raw); got != tc.want {
			t.Fatalf("Decode(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
		if Decode(tc.raw).Public() {
			t.Fatalf("Decode(%q) must not be public", tc.raw)
		}
	}
}

func TestDecodeTwoArgumentOrder(t *testing.T) {
	// Last two tokens are chat id then node id, in that order.
	a := Decode("node_mgr_-1007_31")
	if a.Kind != KindNodeManager || a.ChatID != -1007 || a.NodeID != 31 {
		t.Fatalf("node_mgr decoded to %+v", a)
	}
	a = Decode("node_list_children_4_5")
	if a.Kind != KindNodeChildren || a.ChatID != 4 || a.NodeID != 5 {
		t.Fatalf("node_list_children decoded to %+v", a)
	}
}

func TestDecodeWelcomeModeKeepsUnderscoredMode(t *testing.T) {
	a := Decode("welcome_mode_-12_new_only")
	if a.Kind != KindWelcomeMode || a.ChatID != -12 || a.Value != "new_only" {
		t.Fatalf("welcome_mode decoded to %+v", a)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		raw  string
		want Action
	}{
		{NodeLink(42), Action{Kind: KindShowNode, NodeID: 42}},
		{HomeLink(-9), Action{Kind: KindShowRoot, ChatID: -9}},
		{NodeManagerLink(-9, 3), Action{Kind: KindNodeManager, ChatID: -9, NodeID: 3}},
		{ConfigWelcomeLink(-9), Action{Kind: KindConfigWelcome, ChatID: -9}},
		{NodeAddURLLink(7), Action{Kind: KindNodeAddURL, NodeID: 7}},
		{NodeAddSubLink(7), Action{Kind: KindNodeAddSub, NodeID: 7}},
		{WelcomeModeLink(-9, "new_only"), Action{Kind: KindWelcomeMode, ChatID: -9, Value: "new_only"}},
	}
	for _, tc := range cases {
		if got := Decode(tc.raw); got != tc.want {
			t.Fatalf("Decode(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
}
