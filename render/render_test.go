package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"adminbot/telegram"
	"adminbot/tree"
)

type call struct {
	method    string
	text      string
	parseMode string
	photo     string
	chatID    int64
	threadID  int
	messageID int
	alert     bool
}

// fakeTransport records every transport call and can fail specific methods a
// limited number of times.
type fakeTransport struct {
	calls    []call
	failWith map[string][]error
}

func (f *fakeTransport) pop(method string) error {
	queue := f.failWith[method]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.failWith[method] = queue[1:]
	return err
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, threadID int, text string, _ *telegram.InlineKeyboardMarkup, pm string) error {
	f.calls = append(f.calls, call{method: "sendText", chatID: chatID, threadID: threadID, text: text, parseMode: pm})
	return f.pop("sendText")
}

func (f *fakeTransport) SendPhoto(_ context.Context, chatID int64, threadID int, photo, caption string, _ *telegram.InlineKeyboardMarkup, pm string) error {
	f.calls = append(f.calls, call{method: "sendPhoto", chatID: chatID, threadID: threadID, photo: photo, text: caption, parseMode: pm})
	return f.pop("sendPhoto")
}

func (f *fakeTransport) EditText(_ context.Context, chatID int64, messageID int, text string, _ *telegram.InlineKeyboardMarkup, pm string) error {
	f.calls = append(f.calls, call{method: "editText", chatID: chatID, messageID: messageID, text: text, parseMode: pm})
	return f.pop("editText")
}

func (f *fakeTransport) EditCaption(_ context.Context, chatID int64, messageID int, caption string, _ *telegram.InlineKeyboardMarkup, pm string) error {
	f.calls = append(f.calls, call{method: "editCaption", chatID: chatID, messageID: messageID, text: caption, parseMode: pm})
	return f.pop("editCaption")
}

func (f *fakeTransport) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	f.calls = append(f.calls, call{method: "answer", text: text, alert: alert})
	return nil
}

func apiErr(desc string) error {
	return &telegram.APIError{Code: 400, Description: desc}
}

func textNode() *tree.Node {
	return &tree.Node{ID: 2, ChatID: -100, Text: "Hola {name}", ParseMode: tree.ModeHTML}
}

func photoNode() *tree.Node {
	n := textNode()
	n.ImageURL = "file123"
	return n
}

func TestShowDecisionTable(t *testing.T) {
	cases := []struct {
		name       string
		node       *tree.Node
		targetIsPh bool
		want       string
	}{
		{"image over photo edits caption", photoNode(), true, "editCaption"},
		{"image over text sends photo", photoNode(), false, "sendPhoto"},
		{"text over photo sends text", textNode(), true, "sendText"},
		{"text over text edits text", textNode(), false, "editText"},
	}
	for _, tc := range cases {
		tg := &fakeTransport{}
		r := New(tg)
		target := Target{ChatID: -100, MessageID: 5, IsPhoto: tc.targetIsPh, CallbackID: "cb"}
		if err := r.Show(context.Background(), target, tc.node, Viewer{ID: 1, Name: "Ana"}, "Grupo"); err != nil {
			t.Fatalf("%s: Show returned error: %v", tc.name, err)
		}
		if len(tg.calls) != 1 || tg.calls[0].method != tc.want {
			t.Fatalf("%s: expected single %s call, got %+v", tc.name, tc.want, tg.calls)
		}
	}
}

func TestShowNotModifiedIsBenign(t *testing.T) {
	tg := &fakeTransport{failWith: map[string][]error{
		"editText": {apiErr("Bad Request: message is not modified")},
	}}
	r := New(tg)
	target := Target{ChatID: -100, MessageID: 5, CallbackID: "cb"}

	if err := r.Show(context.Background(), target, textNode(), Viewer{Name: "Ana"}, "Grupo"); err != nil {
		t.Fatalf("not-modified must not surface as error, got %v", err)
	}
	last := tg.calls[len(tg.calls)-1]
	if last.method != "answer" || last.alert {
		t.Fatalf("expected toast acknowledgment, got %+v", last)
	}
}

func TestShowParseModeFallbackRetriesOnce(t *testing.T) {
	tg := &fakeTransport{failWith: map[string][]error{
		"editText": {apiErr("Bad Request: can't parse entities: something")},
	}}
	r := New(tg)
	target := Target{ChatID: -100, MessageID: 5, CallbackID: "cb"}
	node := textNode()
	node.Text = "Hola <b>{name}"

	if err := r.Show(context.Background(), target, node, Viewer{Name: "Ana"}, "Grupo"); err != nil {
		t.Fatalf("fallback retry should succeed, got %v", err)
	}

	var edits []call
	for _, c := range tg.calls {
		if c.method == "editText" {
			edits = append(edits, c)
		}
	}
	if len(edits) != 2 {
		t.Fatalf("expected exactly two edit attempts, got %d", len(edits))
	}
	if edits[0].parseMode != "HTML" || edits[1].parseMode != "" {
		t.Fatalf("expected HTML then plain, got %q then %q", edits[0].parseMode, edits[1].parseMode)
	}
}

func TestShowFallbackFailureIsTerminal(t *testing.T) {
	tg := &fakeTransport{failWith: map[string][]error{
		"editText": {
			apiErr("Bad Request: can't parse entities: a"),
			apiErr("Bad Request: can't parse entities: b"),
		},
	}}
	r := New(tg)
	target := Target{ChatID: -100, MessageID: 5, CallbackID: "cb"}

	err := r.Show(context.Background(), target, textNode(), Viewer{Name: "Ana"}, "Grupo")
	if err == nil {
		t.Fatal("expected terminal error after failed retry")
	}

	edits := 0
	alerted := false
	for _, c := range tg.calls {
		if c.method == "editText" {
			edits++
		}
		if c.method == "answer" && c.alert {
			alerted = true
		}
	}
	if edits != 2 {
		t.Fatalf("expected exactly two attempts (no second retry), got %d", edits)
	}
	if !alerted {
		t.Fatal("expected a user-visible alert after terminal failure")
	}
}

func TestShowHardFailurePropagates(t *testing.T) {
	hard := errors.New("network down")
	tg := &fakeTransport{failWith: map[string][]error{"editText": {hard}}}
	r := New(tg)

	err := r.Show(context.Background(), Target{ChatID: 1, MessageID: 2}, textNode(), Viewer{}, "g")
	if !errors.Is(err, hard) {
		t.Fatalf("expected hard failure to propagate, got %v", err)
	}
	for _, c := range tg.calls {
		if c.method == "editText" && c.parseMode == "" {
			t.Fatal("hard failures must not trigger the plain-text retry")
		}
	}
}

func TestSendUsesThreadAndFallback(t *testing.T) {
	tg := &fakeTransport{failWith: map[string][]error{
		"sendPhoto": {apiErr("can't parse entities")},
	}}
	r := New(tg)

	if err := r.Send(context.Background(), -100, 33, photoNode(), Viewer{ID: 4, Name: "Bea"}, "Grupo"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(tg.calls) != 2 {
		t.Fatalf("expected two send attempts, got %+v", tg.calls)
	}
	for _, c := range tg.calls {
		if c.method != "sendPhoto" || c.threadID != 33 || c.photo != "file123" {
			t.Fatalf("unexpected call %+v", c)
		}
	}
	if tg.calls[1].parseMode != "" {
		t.Fatalf("retry must disable formatting, got %q", tg.calls[1].parseMode)
	}
}

func TestBuildKeyboardSynthesizesNavigation(t *testing.T) {
	parent := int64(1)
	n := &tree.Node{
		ID: 2, ChatID: -100, ParentID: &parent,
		Buttons: []tree.Row{{tree.URLButton("Visitar", "https://example.com")}},
	}
	kb := BuildKeyboard(n)
	if kb == nil || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("expected stored row plus navigation row, got %+v", kb)
	}
	nav := kb.InlineKeyboard[1]
	if len(nav) != 2 || nav[0].CallbackData != "wb_1" || nav[1].CallbackData != "wb_home_-100" {
		t.Fatalf("unexpected navigation row: %+v", nav)
	}

	// Root with buttons gets only the home button.
	root := &tree.Node{ID: 1, ChatID: -100, Buttons: []tree.Row{{tree.NodeButton("Ver", 2)}}}
	kb = BuildKeyboard(root)
	if len(kb.InlineKeyboard) != 2 || len(kb.InlineKeyboard[1]) != 1 {
		t.Fatalf("unexpected root keyboard: %+v", kb.InlineKeyboard)
	}

	// Root without buttons gets no keyboard at all.
	if kb := BuildKeyboard(&tree.Node{ID: 1, ChatID: -100}); kb != nil {
		t.Fatalf("expected nil keyboard for bare root, got %+v", kb)
	}
}

func TestFormatEscaping(t *testing.T) {
	v := Viewer{ID: 7, Name: "Ana <3", Username: "ana_dev"}

	html := Format("Hola {name} en {group_name}", v, "G&G", tree.ModeHTML)
	if !strings.Contains(html, "Ana &lt;3") || !strings.Contains(html, "G&amp;G") {
		t.Fatalf("HTML escaping missing: %q", html)
	}

	md := Format("Hola {name}", Viewer{Name: "a.b!c"}, "g", tree.ModeMarkdownV2)
	if !strings.Contains(md, `a\.b\!c`) {
		t.Fatalf("MarkdownV2 escaping missing: %q", md)
	}

	plain := Format("Hola {name}", v, "g", tree.ModePlain)
	if plain != "Hola Ana <3" {
		t.Fatalf("plain mode must not escape: %q", plain)
	}
}

func TestFormatMention(t *testing.T) {
	v := Viewer{ID: 7, Name: "Ana"}
	got := Format("{mention}", v, "g", tree.ModeHTML)
	if got != "<a href='tg://user?id=7'>Ana</a>" {
		t.Fatalf("unexpected HTML mention: %q", got)
	}

	got = Format("{mention}", v, "g", tree.ModeMarkdownV2)
	if got != "[Ana](tg://user?id=7)" {
		t.Fatalf("unexpected MarkdownV2 mention: %q", got)
	}

	// Without an id the mention falls back to the escaped name.
	got = Format("{mention}", Viewer{Name: "An<a"}, "g", tree.ModeHTML)
	if got != "An&lt;a" {
		t.Fatalf("unexpected fallback mention: %q", got)
	}
}

func TestFormatUnknownPlaceholderUntouched(t *testing.T) {
	got := Format("Hola {nickname}", Viewer{Name: "Ana"}, "g", tree.ModePlain)
	if got != "Hola {nickname}" {
		t.Fatalf("unknown placeholder must survive: %q", got)
	}
}

func TestFormatEmptyTemplateUsesDefault(t *testing.T) {
	got := Format("", Viewer{Name: "Ana"}, "Grupo", tree.ModePlain)
	if !strings.Contains(got, "Ana") || !strings.Contains(got, "Grupo") {
		t.Fatalf("default template not applied: %q", got)
	}
}

func TestTruncateCountsRunesNotBytes(t *testing.T) {
	long := strings.Repeat("€", 67)
	got := Truncate(long, 20)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("€", 20)+"..." {
		t.Fatalf("Truncate(67 euros, 20) = %q", got)
	}

	accented := "Administración de Grupos Hispanohablantes"
	got = Truncate(accented, 12)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got)
	}
	if got != "Administraci..." {
		t.Fatalf("Truncate(%q, 12) = %q", accented, got)
	}
}

func TestTruncateShortStringUnchanged(t *testing.T) {
	if got := Truncate("Grupo 🎉", 25); got != "Grupo 🎉" {
		t.Fatalf("short string must pass through: %q", got)
	}
}
