package telegram

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
	"github.com/Alexey3476/CoC-Telegramm/internal/store"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type fakeBackend struct {
	mu         sync.Mutex
	clan       *coc.Clan
	war        *coc.War
	players    map[string]*coc.Player
	err        error
	clanCalls  int
	warCalls   int
	playerTags []string
}

func (f *fakeBackend) Clan(ctx context.Context) (*coc.Clan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clanCalls++
	return f.clan, f.err
}

func (f *fakeBackend) War(ctx context.Context) (*coc.War, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warCalls++
	return f.war, f.err
}

func (f *fakeBackend) Player(ctx context.Context, tag string) (*coc.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playerTags = append(f.playerTags, tag)
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.players[coc.NormalizeTag(tag)]
	if !ok {
		return nil, &coc.StatusError{Path: "/player/" + tag, Code: 404}
	}
	return p, nil
}

type fakeAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func newTestBot(t *testing.T) (*Bot, *fakeBackend, *store.SQLite) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	backend := &fakeBackend{
		clan:    &coc.Clan{Tag: "#CLAN", Name: "Clan"},
		war:     &coc.War{State: coc.StateNotInWar},
		players: map[string]*coc.Player{"#P1": {Tag: "#P1", Name: "Zed"}},
	}
	return NewBot(&fakeAPI{}, backend, s, true, nil), backend, s
}

func groupCmd(name string, args ...string) Command {
	return Command{
		Name: name, Args: args,
		ChatID: -100, ChatType: "supergroup",
		UserID: 7, Username: "zed", FullName: "Zed Z",
	}
}

func privateCmd(name string, args ...string) Command {
	c := groupCmd(name, args...)
	c.ChatID, c.ChatType = 7, "private"
	return c
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestHandle_Bind(t *testing.T) {
	bot, backend, s := newTestBot(t)
	ctx := context.Background()

	reply := bot.Handle(ctx, groupCmd("bind", "p1"))
	assert.Equal(t, "Bound #P1 to Zed Z in this group.", reply.Text)
	assert.Equal(t, []string{"#P1"}, backend.playerTags, "tag validated before binding")

	b, err := s.Get(ctx, 7, -100)
	require.NoError(t, err)
	assert.Equal(t, "#P1", b.PlayerTag)
	assert.Equal(t, "zed", b.Username)
	assert.Equal(t, "Zed Z", b.DisplayName)
}

func TestHandle_BindUnknownPlayerNotStored(t *testing.T) {
	bot, _, s := newTestBot(t)
	ctx := context.Background()

	reply := bot.Handle(ctx, groupCmd("bind", "#NOPE"))
	assert.Equal(t, "Player not found.", reply.Text)

	_, err := s.Get(ctx, 7, -100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandle_BindUsage(t *testing.T) {
	bot, backend, _ := newTestBot(t)

	assert.Equal(t, "Usage: /bind <player_tag>", bot.Handle(context.Background(), groupCmd("bind")).Text)
	assert.Equal(t, "Usage: /bind <player_tag>", bot.Handle(context.Background(), groupCmd("bind", "#")).Text)
	assert.Empty(t, backend.playerTags)
}

func TestHandle_GroupOnlyCommands(t *testing.T) {
	bot, backend, _ := newTestBot(t)

	for _, name := range []string{"bind", "unbind", "bindings"} {
		reply := bot.Handle(context.Background(), privateCmd(name, "#P1"))
		assert.Equal(t, groupOnlyText, reply.Text, name)
	}
	assert.Empty(t, backend.playerTags)
}

func TestHandle_Unbind(t *testing.T) {
	bot, _, _ := newTestBot(t)
	ctx := context.Background()

	assert.Equal(t, "No binding found for you in this group.", bot.Handle(ctx, groupCmd("unbind")).Text)

	bot.Handle(ctx, groupCmd("bind", "#P1"))
	assert.Equal(t, "Binding removed for this group.", bot.Handle(ctx, groupCmd("unbind")).Text)
	assert.Equal(t, "No binding found for you in this group.", bot.Handle(ctx, groupCmd("unbind")).Text)
}

func TestHandle_Bindings(t *testing.T) {
	bot, _, _ := newTestBot(t)
	ctx := context.Background()

	bot.Handle(ctx, groupCmd("bind", "#P1"))
	reply := bot.Handle(ctx, groupCmd("bindings"))
	assert.Equal(t, tgbotapi.ModeHTML, reply.ParseMode)
	assert.Contains(t, reply.Text, "Zed Z (@zed): <code>#P1</code>")
}

func TestHandle_BackendErrorMessages(t *testing.T) {
	tests := []struct {
		err     error
		command string
		want    string
	}{
		{fmt.Errorf("GET /war: %w", coc.ErrUnreachable), "war", unreachableText},
		{&coc.StatusError{Code: 429}, "clan", rateLimitedText},
		{&coc.StatusError{Code: 504}, "war", timeoutText},
		{&coc.StatusError{Code: 400}, "clan", "Invalid clan tag configured."},
		{&coc.StatusError{Code: 400}, "player", "Invalid player tag format."},
		{&coc.StatusError{Code: 404}, "player", "Player not found."},
		{&coc.StatusError{Code: 500}, "player", "Backend error while fetching player data."},
		{&coc.StatusError{Code: 500}, "clan", "Backend error while fetching clan data."},
		{&coc.StatusError{Code: 503}, "bind", "Backend error while validating player."},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%v", tt.command, tt.err), func(t *testing.T) {
			bot, backend, _ := newTestBot(t)
			backend.err = tt.err

			reply := bot.Handle(context.Background(), groupCmd(tt.command, "#P1"))
			assert.Equal(t, tt.want, reply.Text)
			assert.Empty(t, reply.ParseMode)
		})
	}
}

func TestHandle_ClanAndWarCached(t *testing.T) {
	bot, backend, _ := newTestBot(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Contains(t, bot.Handle(ctx, groupCmd("clan")).Text, "<code>#CLAN</code>")
		assert.Contains(t, bot.Handle(ctx, groupCmd("war")).Text, "State: notInWar")
	}
	assert.Equal(t, 1, backend.clanCalls)
	assert.Equal(t, 1, backend.warCalls)
}

func TestHandle_Player(t *testing.T) {
	bot, backend, _ := newTestBot(t)

	assert.Equal(t, "Usage: /player <tag>", bot.Handle(context.Background(), groupCmd("player")).Text)

	reply := bot.Handle(context.Background(), privateCmd("player", "#p1"))
	assert.Contains(t, reply.Text, "<b>Zed</b>")
	assert.Equal(t, []string{"#p1"}, backend.playerTags)
}

func TestHandle_UnknownCommandIgnored(t *testing.T) {
	bot, _, _ := newTestBot(t)
	assert.Empty(t, bot.Handle(context.Background(), groupCmd("dance")).Text)
}

func TestCommandFromUpdate(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		Text:      "/Bind@ClanBot #abc 123",
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 13}},
		Chat:      &tgbotapi.Chat{ID: -100, Type: "group"},
		From:      &tgbotapi.User{ID: 7, FirstName: "Zed", LastName: "Z", UserName: "zed"},
	}}

	cmd, ok := commandFromUpdate(update)
	require.True(t, ok)
	assert.Equal(t, "bind", cmd.Name)
	assert.Equal(t, []string{"#abc", "123"}, cmd.Args)
	assert.True(t, cmd.InGroup())
	assert.Equal(t, "Zed Z", cmd.FullName)
	assert.Equal(t, 3, cmd.MessageID)

	_, ok = commandFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 1}}})
	assert.False(t, ok)
}
