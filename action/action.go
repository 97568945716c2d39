// Package action translates the compact callback identifiers carried on
// inline buttons into typed actions and back. The underscore-delimited wire
// grammar lives only here; everything else works with Action values.
package action

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates every operation a pressed button can request.
type Kind int

const (
	// KindNone classifies identifiers this bot does not recognise. Stale
	// buttons from old messages must never crash the router, so unknown
	// verbs decode to a no-op instead of an error.
	KindNone Kind = iota

	// Public navigation. These two are the only kinds that bypass the
	// authorization gate.
	KindShowNode // wb_<node>
	KindShowRoot // wb_home_<chat>

	// Top-level panels.
	KindAdminPanel
	KindViewGroups
	KindBotInfo
	KindManageWelcomes
	KindGlobalSettings
	KindGeneralStats

	// Per-group screens and toggles.
	KindConfigWelcome   // config_welcome_<chat>
	KindGroupSettings   // group_settings_<chat>
	KindGroupStats      // group_stats_<chat>
	KindConfigGroup     // config_group_<chat>
	KindTestWelcome     // test_welcome_<chat>
	KindEditButtons     // edit_welcome_buttons_<chat>
	KindEditMessage     // edit_welcome_message_<chat>
	KindEditImage       // edit_welcome_image_<chat>
	KindToggleWelcome   // toggle_welcome_<chat>
	KindWelcomeMode     // welcome_mode_<chat>_<mode>
	KindUpdateGroup     // update_group_<chat>
	KindDeactivateGroup // deactivate_group_<chat>
	KindRefreshStats    // refresh_stats_<chat>
	KindTopicHelp       // set_welcome_topic_instr_<chat>

	// Node manager operations.
	KindNodeManager   // node_mgr_<chat>_<node>
	KindNodeAddURL    // node_add_url_<node>
	KindNodeAddSub    // node_add_sub_<node>
	KindNodeRename    // node_rename_<node>
	KindNodeSetImage  // node_set_image_<node>
	KindNodeParse     // node_parse_<node>
	KindNodeClearBtns // node_clear_btns_<node>
	KindNodeDelete    // node_del_<node>
	KindNodeChildren  // node_list_children_<chat>_<node>

	// Global settings selectors.
	KindSetLanguage   // gs_lang_<code>
	KindSetDateFormat // gs_datefmt_<n>
	KindSetParseMode  // gs_parse_<mode>

	// Back navigation.
	KindBack // back_<dest>
)

// Action is the decoded form of a callback identifier. ChatID and NodeID are
// set only for kinds that carry them; Value holds the trailing keyword of the
// welcome-mode, settings and back verbs.
type Action struct {
	Kind   Kind
	ChatID int64
	NodeID int64
	Value  string
}

// Public reports whether the action may be performed by anyone. Only the two
// welcome-navigation verbs qualify; every other kind must pass an
// authorization check before dispatch.
func (a Action) Public() bool {
	return a.Kind == KindShowNode || a.Kind == KindShowRoot
}

// Decode classifies a raw callback identifier. It is deterministic and total:
// anything it cannot make sense of, including verbs with non-numeric trailing
// arguments, comes back as KindNone.
func Decode(raw string) Action {
	switch raw {
	case "admin_panel":
		return Action{Kind: KindAdminPanel}
	case "view_groups":
		return Action{Kind: KindViewGroups}
	case "bot_info":
		return Action{Kind: KindBotInfo}
	case "manage_welcomes":
		return Action{Kind: KindManageWelcomes}
	case "global_settings":
		return Action{Kind: KindGlobalSettings}
	case "general_stats":
		return Action{Kind: KindGeneralStats}
	}

	// wb_home_ must be tried before the shorter wb_ prefix.
	if id, ok := trailingID(raw, "wb_home_"); ok {
		return Action{Kind: KindShowRoot, ChatID: id}
	}
	if strings.HasPrefix(raw, "wb_") {
		if id, ok := trailingID(raw, "wb_"); ok && strings.Count(raw, "_") == 1 {
			return Action{Kind: KindShowNode, NodeID: id}
		}
		return Action{Kind: KindNone}
	}

	for _, verb := range chatVerbs {
		if id, ok := trailingID(raw, verb.prefix); ok {
			return Action{Kind: verb.kind, ChatID: id}
		}
	}
	for _, verb := range nodeVerbs {
		if id, ok := trailingID(raw, verb.prefix); ok {
			return Action{Kind: verb.kind, NodeID: id}
		}
	}

	if chat, node, ok := trailingPair(raw, "node_mgr_"); ok {
		return Action{Kind: KindNodeManager, ChatID: chat, NodeID: node}
	}
	if chat, node, ok := trailingPair(raw, "node_list_children_"); ok {
		return Action{Kind: KindNodeChildren, ChatID: chat, NodeID: node}
	}

	// welcome_mode_<chat>_<mode>: the mode keyword may itself contain
	// underscores (new_only), so the chat id is the token right after the
	// verb, not the last one.
	if rest, ok := strings.CutPrefix(raw, "welcome_mode_"); ok {
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) == 2 {
			if chat, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
				return Action{Kind: KindWelcomeMode, ChatID: chat, Value: parts[1]}
			}
		}
		return Action{Kind: KindNone}
	}

	if v, ok := strings.CutPrefix(raw, "gs_lang_"); ok {
		return Action{Kind: KindSetLanguage, Value: v}
	}
	if v, ok := strings.CutPrefix(raw, "gs_datefmt_"); ok {
		return Action{Kind: KindSetDateFormat, Value: v}
	}
	if v, ok := strings.CutPrefix(raw, "gs_parse_"); ok {
		return Action{Kind: KindSetParseMode, Value: v}
	}
	if v, ok := strings.CutPrefix(raw, "back_"); ok {
		return Action{Kind: KindBack, Value: v}
	}

	return Action{Kind: KindNone}
}

var chatVerbs = []struct {
	prefix string
	kind   Kind
}{
	{"edit_welcome_buttons_", KindEditButtons},
	{"edit_welcome_message_", KindEditMessage},
	{"edit_welcome_image_", KindEditImage},
	{"config_welcome_", KindConfigWelcome},
	{"group_settings_", KindGroupSettings},
	{"group_stats_", KindGroupStats},
	{"config_group_", KindConfigGroup},
	{"test_welcome_", KindTestWelcome},
	{"toggle_welcome_", KindToggleWelcome},
	{"update_group_", KindUpdateGroup},
	{"deactivate_group_", KindDeactivateGroup},
	{"refresh_stats_", KindRefreshStats},
	{"set_welcome_topic_instr_", KindTopicHelp},
}

var nodeVerbs = []struct {
	prefix string
	kind   Kind
}{
	{"node_add_url_", KindNodeAddURL},
	{"node_add_sub_", KindNodeAddSub},
	{"node_rename_", KindNodeRename},
	{"node_set_image_", KindNodeSetImage},
	{"node_parse_", KindNodeParse},
	{"node_clear_btns_", KindNodeClearBtns},
	{"node_del_", KindNodeDelete},
}

// trailingID parses <prefix><int> where the integer is the final token.
func trailingID(raw, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(raw, prefix)
	if !ok || rest == "" || strings.Contains(rest, "_") {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// trailingPair parses <prefix><chat>_<node>, the fixed positional order for
// the two-argument verbs.
func trailingPair(raw, prefix string) (chat, node int64, ok bool) {
	rest, found := strings.CutPrefix(raw, prefix)
	if !found {
		return 0, 0, false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 {
		return 0, 0, false
	}
	chat, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	node, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return chat, node, true
}

// Encode helpers. Components build callback identifiers through these so the
// wire grammar never leaks out of this package.

// NodeLink targets public navigation to a node.
func NodeLink(nodeID int64) string {
	return fmt.Sprintf("wb_%d", nodeID)
}

// HomeLink targets public navigation to a chat's root node.
func HomeLink(chatID int64) string {
	return fmt.Sprintf("wb_home_%d", chatID)
}

// NodeManagerLink opens the node manager for one node.
func NodeManagerLink(chatID, nodeID int64) string {
	return fmt.Sprintf("node_mgr_%d_%d", chatID, nodeID)
}

// ConfigWelcomeLink opens a chat's welcome configuration screen.
func ConfigWelcomeLink(chatID int64) string {
	return fmt.Sprintf("config_welcome_%d", chatID)
}

// ConfigGroupLink opens a chat's group settings screen.
func ConfigGroupLink(chatID int64) string {
	return fmt.Sprintf("config_group_%d", chatID)
}

// NodeAddURLLink starts the add-URL-button wizard on a node.
func NodeAddURLLink(nodeID int64) string {
	return fmt.Sprintf("node_add_url_%d", nodeID)
}

// NodeAddSubLink starts the add-submenu wizard on a node.
func NodeAddSubLink(nodeID int64) string {
	return fmt.Sprintf("node_add_sub_%d", nodeID)
}

// WelcomeModeLink selects a delivery mode for a chat.
func WelcomeModeLink(chatID int64, mode string) string {
	return fmt.Sprintf("welcome_mode_%d_%s", chatID, mode)
}
