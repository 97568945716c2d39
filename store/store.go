// Package store persists the bot's state in Redis: content trees, the group
// registry, welcome configuration and counters. Keys are namespaced under a
// configurable prefix so one instance can share a database with other jobs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"adminbot/tree"
)

var (
	// ErrNodeNotFound is returned when a node id resolves to nothing, which
	// happens routinely when users press buttons on stale messages.
	ErrNodeNotFound = errors.New("store: node not found")

	// ErrGroupNotFound is returned for chats the bot was never added to.
	ErrGroupNotFound = errors.New("store: group not found")
)

// Store is the Redis-backed document store.
type Store struct {
	client *redis.Client
	prefix string
}

type Option func(*Store)

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to the Redis instance at addr.
func New(addr string, opts ...Option) *Store {
	return NewFromClient(redis.NewClient(&redis.Options{Addr: addr}), opts...)
}

// NewFromClient wraps an existing client, which the tests use to point the
// store at miniredis.
func NewFromClient(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: "adminbot:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) nodeKey(id int64) string {
	return fmt.Sprintf("%snode:%d", s.prefix, id)
}

func (s *Store) rootKey(chatID int64) string {
	return fmt.Sprintf("%schat:%d:root", s.prefix, chatID)
}

func (s *Store) childrenKey(chatID, parentID int64) string {
	return fmt.Sprintf("%schat:%d:children:%d", s.prefix, chatID, parentID)
}

func (s *Store) welcomeKey(chatID int64) string {
	return fmt.Sprintf("%schat:%d:welcome", s.prefix, chatID)
}

func (s *Store) seenKey(chatID int64) string {
	return fmt.Sprintf("%schat:%d:seen", s.prefix, chatID)
}

func (s *Store) statsKey(chatID int64) string {
	return fmt.Sprintf("%schat:%d:stats", s.prefix, chatID)
}

func (s *Store) groupKey(chatID int64) string {
	return fmt.Sprintf("%sgroup:%d", s.prefix, chatID)
}

func (s *Store) groupsKey() string   { return s.prefix + "groups" }
func (s *Store) settingsKey() string { return s.prefix + "settings" }
func (s *Store) nodeSeqKey() string  { return s.prefix + "seq:node" }

// nodeRecord is the stored shape of a tree.Node. Buttons stay raw JSON so a
// payload written by an older version decodes through the tolerant codec
// instead of failing the whole node.
type nodeRecord struct {
	ID        int64           `json:"id"`
	ChatID    int64           `json:"chat_id"`
	ParentID  *int64          `json:"parent_id,omitempty"`
	Text      string          `json:"text"`
	ParseMode string          `json:"parse_mode,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	Buttons   json.RawMessage `json:"buttons,omitempty"`
}

func recordToNode(rec nodeRecord) *tree.Node {
	return &tree.Node{
		ID:        rec.ID,
		ChatID:    rec.ChatID,
		ParentID:  rec.ParentID,
		Text:      rec.Text,
		ParseMode: tree.NormalizeParseMode(rec.ParseMode),
		ImageURL:  rec.ImageURL,
		Buttons:   tree.DecodeButtons(rec.Buttons),
	}
}

func (s *Store) loadRecord(ctx context.Context, id int64) (nodeRecord, error) {
	var rec nodeRecord
	raw, err := s.client.Get(ctx, s.nodeKey(id)).Bytes()
	if err == redis.Nil {
		return rec, ErrNodeNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("store: load node %d: %w", id, err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("store: decode node %d: %w", id, err)
	}
	return rec, nil
}

func (s *Store) saveRecord(ctx context.Context, rec nodeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode node %d: %w", rec.ID, err)
	}
	if err := s.client.Set(ctx, s.nodeKey(rec.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("store: save node %d: %w", rec.ID, err)
	}
	return nil
}

// GetNode loads one node.
func (s *Store) GetNode(ctx context.Context, id int64) (*tree.Node, error) {
	rec, err := s.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return recordToNode(rec), nil
}

// GetRootNode loads the chat's root, or ErrNodeNotFound when the chat has no
// tree yet.
func (s *Store) GetRootNode(ctx context.Context, chatID int64) (*tree.Node, error) {
	id, err := s.client.Get(ctx, s.rootKey(chatID)).Int64()
	if err == redis.Nil {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: root of chat %d: %w", chatID, err)
	}
	return s.GetNode(ctx, id)
}

// EnsureRoot returns the chat's root node id, creating an empty root on first
// use. Concurrent callers converge on a single root via SETNX.
func (s *Store) EnsureRoot(ctx context.Context, chatID int64) (int64, error) {
	if id, err := s.client.Get(ctx, s.rootKey(chatID)).Int64(); err == nil {
		return id, nil
	} else if err != redis.Nil {
		return 0, fmt.Errorf("store: root of chat %d: %w", chatID, err)
	}

	id, err := s.client.Incr(ctx, s.nodeSeqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("store: node sequence: %w", err)
	}
	rec := nodeRecord{ID: id, ChatID: chatID, ParseMode: string(tree.ModeHTML)}
	if err := s.saveRecord(ctx, rec); err != nil {
		return 0, err
	}

	set, err := s.client.SetNX(ctx, s.rootKey(chatID), id, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("store: set root of chat %d: %w", chatID, err)
	}
	if !set {
		// Lost the race; discard our node and use the winner's.
		s.client.Del(ctx, s.nodeKey(id))
		winner, err := s.client.Get(ctx, s.rootKey(chatID)).Int64()
		if err != nil {
			return 0, fmt.Errorf("store: root of chat %d: %w", chatID, err)
		}
		return winner, nil
	}
	return id, nil
}

// AddChildNode creates a node under parentID and returns its id. The caller
// wires the navigation button on the parent separately.
func (s *Store) AddChildNode(ctx context.Context, chatID, parentID int64, text string, mode tree.ParseMode) (int64, error) {
	if _, err := s.loadRecord(ctx, parentID); err != nil {
		return 0, err
	}
	id, err := s.client.Incr(ctx, s.nodeSeqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("store: node sequence: %w", err)
	}
	pid := parentID
	rec := nodeRecord{ID: id, ChatID: chatID, ParentID: &pid, Text: text, ParseMode: string(mode)}
	if err := s.saveRecord(ctx, rec); err != nil {
		return 0, err
	}
	if err := s.client.SAdd(ctx, s.childrenKey(chatID, parentID), id).Err(); err != nil {
		return 0, fmt.Errorf("store: index child %d of %d: %w", id, parentID, err)
	}
	return id, nil
}

// GetChildNodes lists the direct children of a node, oldest first. The
// membership set carries no order, so creation order is recovered from the
// sequence-assigned ids.
func (s *Store) GetChildNodes(ctx context.Context, chatID, parentID int64) ([]*tree.Node, error) {
	raw, err := s.client.SMembers(ctx, s.childrenKey(chatID, parentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: children of %d: %w", parentID, err)
	}
	ids := make([]int64, 0, len(raw))
	for _, member := range raw {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nodes := make([]*tree.Node, 0, len(ids))
	for _, id := range ids {
		n, err := s.GetNode(ctx, id)
		if err == ErrNodeNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// UpdateText replaces a node's text.
func (s *Store) UpdateText(ctx context.Context, id int64, text string) error {
	rec, err := s.loadRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.Text = text
	return s.saveRecord(ctx, rec)
}

// UpdateImage replaces a node's image reference; empty clears it.
func (s *Store) UpdateImage(ctx context.Context, id int64, imageURL string) error {
	rec, err := s.loadRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.ImageURL = imageURL
	return s.saveRecord(ctx, rec)
}

// SetParseMode replaces a node's formatting mode.
func (s *Store) SetParseMode(ctx context.Context, id int64, mode tree.ParseMode) error {
	rec, err := s.loadRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.ParseMode = string(mode)
	return s.saveRecord(ctx, rec)
}

// SetButtons replaces a node's button rows. nil clears them.
func (s *Store) SetButtons(ctx context.Context, id int64, rows []tree.Row) error {
	rec, err := s.loadRecord(ctx, id)
	if err != nil {
		return err
	}
	data, err := tree.EncodeButtons(rows)
	if err != nil {
		return fmt.Errorf("store: encode buttons of node %d: %w", id, err)
	}
	rec.Buttons = data
	return s.saveRecord(ctx, rec)
}

// DeleteNode removes a node and its whole subtree. The navigation buttons on
// the parent that pointed at the node are dropped as well. Roots cannot be
// deleted.
func (s *Store) DeleteNode(ctx context.Context, id int64) error {
	rec, err := s.loadRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.ParentID == nil {
		return fmt.Errorf("store: node %d is a root and cannot be deleted", id)
	}

	if err := s.deleteSubtree(ctx, rec.ChatID, id); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, s.childrenKey(rec.ChatID, *rec.ParentID), id).Err(); err != nil {
		return fmt.Errorf("store: unindex node %d: %w", id, err)
	}

	parent, err := s.loadRecord(ctx, *rec.ParentID)
	if err == ErrNodeNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	rows := pruneNodeButtons(tree.DecodeButtons(parent.Buttons), id)
	data, err := tree.EncodeButtons(rows)
	if err != nil {
		return fmt.Errorf("store: encode buttons of node %d: %w", parent.ID, err)
	}
	parent.Buttons = data
	return s.saveRecord(ctx, parent)
}

func (s *Store) deleteSubtree(ctx context.Context, chatID, id int64) error {
	ids, err := s.client.SMembers(ctx, s.childrenKey(chatID, id)).Result()
	if err != nil {
		return fmt.Errorf("store: children of %d: %w", id, err)
	}
	for _, raw := range ids {
		child, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if err := s.deleteSubtree(ctx, chatID, child); err != nil {
			return err
		}
	}
	if err := s.client.Del(ctx, s.childrenKey(chatID, id), s.nodeKey(id)).Err(); err != nil {
		return fmt.Errorf("store: delete node %d: %w", id, err)
	}
	return nil
}

// pruneNodeButtons removes every navigation button targeting nodeID and drops
// rows left empty.
func pruneNodeButtons(rows []tree.Row, nodeID int64) []tree.Row {
	var out []tree.Row
	for _, row := range rows {
		var kept tree.Row
		for _, b := range row {
			if b.Type == tree.ButtonNode && b.NodeID == nodeID {
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// WelcomeSettings controls delivery for one chat.
type WelcomeSettings struct {
	Enabled  bool   `json:"enabled"`
	Mode     string `json:"mode"`
	ThreadID *int   `json:"thread_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// GetWelcomeSettings loads a chat's delivery configuration. Chats that never
// configured anything get the enabled/always defaults.
func (s *Store) GetWelcomeSettings(ctx context.Context, chatID int64) (WelcomeSettings, error) {
	cfg := WelcomeSettings{Enabled: true, Mode: "always"}
	raw, err := s.client.Get(ctx, s.welcomeKey(chatID)).Bytes()
	if err == redis.Nil {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("store: welcome settings of chat %d: %w", chatID, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("store: decode welcome settings of chat %d: %w", chatID, err)
	}
	if cfg.Mode == "" {
		cfg.Mode = "always"
	}
	return cfg, nil
}

func (s *Store) saveWelcomeSettings(ctx context.Context, chatID int64, cfg WelcomeSettings) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: encode welcome settings of chat %d: %w", chatID, err)
	}
	if err := s.client.Set(ctx, s.welcomeKey(chatID), data, 0).Err(); err != nil {
		return fmt.Errorf("store: save welcome settings of chat %d: %w", chatID, err)
	}
	return nil
}

// ToggleWelcome flips the enabled flag and returns the new state.
func (s *Store) ToggleWelcome(ctx context.Context, chatID int64) (bool, error) {
	cfg, err := s.GetWelcomeSettings(ctx, chatID)
	if err != nil {
		return false, err
	}
	cfg.Enabled = !cfg.Enabled
	if err := s.saveWelcomeSettings(ctx, chatID, cfg); err != nil {
		return false, err
	}
	return cfg.Enabled, nil
}

// SetWelcomeMode stores the delivery mode ("always" or "new_only").
func (s *Store) SetWelcomeMode(ctx context.Context, chatID int64, mode string) error {
	cfg, err := s.GetWelcomeSettings(ctx, chatID)
	if err != nil {
		return err
	}
	cfg.Mode = mode
	return s.saveWelcomeSettings(ctx, chatID, cfg)
}

// SetWelcomeMessage stores the denormalized welcome template. Callers keep the
// root node's text in sync with it.
func (s *Store) SetWelcomeMessage(ctx context.Context, chatID int64, text string) error {
	cfg, err := s.GetWelcomeSettings(ctx, chatID)
	if err != nil {
		return err
	}
	cfg.Message = text
	return s.saveWelcomeSettings(ctx, chatID, cfg)
}

// SetWelcomeThread pins welcome delivery to a forum topic.
func (s *Store) SetWelcomeThread(ctx context.Context, chatID int64, threadID int) error {
	cfg, err := s.GetWelcomeSettings(ctx, chatID)
	if err != nil {
		return err
	}
	cfg.ThreadID = &threadID
	return s.saveWelcomeSettings(ctx, chatID, cfg)
}

// ClearWelcomeThread removes the topic pin.
func (s *Store) ClearWelcomeThread(ctx context.Context, chatID int64) error {
	cfg, err := s.GetWelcomeSettings(ctx, chatID)
	if err != nil {
		return err
	}
	cfg.ThreadID = nil
	return s.saveWelcomeSettings(ctx, chatID, cfg)
}

// IsNewMember reports whether the user has never been seen in the chat.
func (s *Store) IsNewMember(ctx context.Context, chatID, userID int64) (bool, error) {
	seen, err := s.client.SIsMember(ctx, s.seenKey(chatID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("store: seen check in chat %d: %w", chatID, err)
	}
	return !seen, nil
}

// MarkSeen records that the user has received a welcome in the chat.
func (s *Store) MarkSeen(ctx context.Context, chatID, userID int64) error {
	if err := s.client.SAdd(ctx, s.seenKey(chatID), userID).Err(); err != nil {
		return fmt.Errorf("store: mark seen in chat %d: %w", chatID, err)
	}
	return nil
}

// IncrementWelcomed bumps the chat's welcome counter and the global one, and
// stamps the time of the last delivery.
func (s *Store) IncrementWelcomed(ctx context.Context, chatID int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.statsKey(chatID), "welcomed", 1)
	pipe.HSet(ctx, s.statsKey(chatID), "last_welcome", now)
	pipe.HIncrBy(ctx, s.settingsKey(), "total_welcomed", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: count welcome in chat %d: %w", chatID, err)
	}
	return nil
}

// GroupStats is the per-chat welcome tally.
type GroupStats struct {
	Welcomed    int64
	LastWelcome string
}

// GetGroupStats loads the chat's welcome tally.
func (s *Store) GetGroupStats(ctx context.Context, chatID int64) (GroupStats, error) {
	var st GroupStats
	vals, err := s.client.HGetAll(ctx, s.statsKey(chatID)).Result()
	if err != nil {
		return st, fmt.Errorf("store: stats of chat %d: %w", chatID, err)
	}
	st.Welcomed, _ = strconv.ParseInt(vals["welcomed"], 10, 64)
	st.LastWelcome = vals["last_welcome"]
	return st, nil
}

// Group is a chat the bot has been added to.
type Group struct {
	ChatID      int64  `json:"chat_id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	AddedBy     int64  `json:"added_by,omitempty"`
	MemberCount int    `json:"member_count,omitempty"`
	IsForum     bool   `json:"is_forum,omitempty"`
	Active      bool   `json:"active"`
	AddedAt     string `json:"added_at,omitempty"`
}

// AddGroup registers (or re-activates) a chat. AddedAt is stamped on first
// registration.
func (s *Store) AddGroup(ctx context.Context, g Group) error {
	g.Active = true
	if existing, err := s.GetGroup(ctx, g.ChatID); err == nil && existing.AddedAt != "" {
		g.AddedAt = existing.AddedAt
	} else if g.AddedAt == "" {
		g.AddedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("store: encode group %d: %w", g.ChatID, err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.groupKey(g.ChatID), data, 0)
	pipe.SAdd(ctx, s.groupsKey(), g.ChatID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: register group %d: %w", g.ChatID, err)
	}
	return nil
}

// GetGroup loads one registered chat.
func (s *Store) GetGroup(ctx context.Context, chatID int64) (*Group, error) {
	raw, err := s.client.Get(ctx, s.groupKey(chatID)).Bytes()
	if err == redis.Nil {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: group %d: %w", chatID, err)
	}
	var g Group
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("store: decode group %d: %w", chatID, err)
	}
	return &g, nil
}

// ListGroups returns every active registered chat.
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	ids, err := s.client.SMembers(ctx, s.groupsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list groups: %w", err)
	}
	groups := make([]Group, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		g, err := s.GetGroup(ctx, id)
		if err == ErrGroupNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if g.Active {
			groups = append(groups, *g)
		}
	}
	return groups, nil
}

// UpdateGroupInfo refreshes the live title and member count.
func (s *Store) UpdateGroupInfo(ctx context.Context, chatID int64, title string, memberCount int) error {
	g, err := s.GetGroup(ctx, chatID)
	if err != nil {
		return err
	}
	if title != "" {
		g.Title = title
	}
	if memberCount > 0 {
		g.MemberCount = memberCount
	}
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("store: encode group %d: %w", chatID, err)
	}
	if err := s.client.Set(ctx, s.groupKey(chatID), data, 0).Err(); err != nil {
		return fmt.Errorf("store: update group %d: %w", chatID, err)
	}
	return nil
}

// DeactivateGroup hides a chat from listings without losing its history.
func (s *Store) DeactivateGroup(ctx context.Context, chatID int64) error {
	g, err := s.GetGroup(ctx, chatID)
	if err != nil {
		return err
	}
	g.Active = false
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("store: encode group %d: %w", chatID, err)
	}
	if err := s.client.Set(ctx, s.groupKey(chatID), data, 0).Err(); err != nil {
		return fmt.Errorf("store: deactivate group %d: %w", chatID, err)
	}
	return nil
}

// GeneralStats aggregates across all chats.
type GeneralStats struct {
	ActiveGroups  int
	TotalMembers  int
	TotalWelcomed int64
}

// GetGeneralStats computes the bot-wide totals shown on the stats screen.
func (s *Store) GetGeneralStats(ctx context.Context) (GeneralStats, error) {
	var st GeneralStats
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return st, err
	}
	st.ActiveGroups = len(groups)
	for _, g := range groups {
		st.TotalMembers += g.MemberCount
	}
	total, err := s.client.HGet(ctx, s.settingsKey(), "total_welcomed").Result()
	if err != nil && err != redis.Nil {
		return st, fmt.Errorf("store: total welcomed: %w", err)
	}
	st.TotalWelcomed, _ = strconv.ParseInt(total, 10, 64)
	return st, nil
}

// Settings are the bot-wide preferences shown on the global settings screen.
type Settings struct {
	Language         string
	DateFormat       string
	DefaultParseMode string
}

// GetSettings loads the global preferences, filling defaults for unset fields.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	cfg := Settings{Language: "es", DateFormat: "02/01/2006 15:04", DefaultParseMode: "HTML"}
	vals, err := s.client.HGetAll(ctx, s.settingsKey()).Result()
	if err != nil {
		return cfg, fmt.Errorf("store: settings: %w", err)
	}
	if v := vals["language"]; v != "" {
		cfg.Language = v
	}
	if v := vals["date_format"]; v != "" {
		cfg.DateFormat = v
	}
	if v := vals["default_parse_mode"]; v != "" {
		cfg.DefaultParseMode = v
	}
	return cfg, nil
}

// SetSetting stores one global preference field.
func (s *Store) SetSetting(ctx context.Context, field, value string) error {
	if err := s.client.HSet(ctx, s.settingsKey(), field, value).Err(); err != nil {
		return fmt.Errorf("store: set %s: %w", field, err)
	}
	return nil
}
