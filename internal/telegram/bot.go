package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Alexey3476/CoC-Telegramm/internal/cache"
	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
	"github.com/Alexey3476/CoC-Telegramm/internal/store"
)

const (
	pollTimeoutSeconds = 30
	maxConcurrentCmds  = 16
)

// --------------------------------------------------------------------------
// Dependencies
// --------------------------------------------------------------------------

// Backend is the game data source used by commands.
type Backend interface {
	Clan(ctx context.Context) (*coc.Clan, error)
	Player(ctx context.Context, tag string) (*coc.Player, error)
	War(ctx context.Context) (*coc.War, error)
}

// UpdatesAPI is the subset of *tgbotapi.BotAPI used by the polling loop.
type UpdatesAPI interface {
	MessageAPI
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Command is a parsed chat command.
type Command struct {
	Name      string // without the leading slash or @botname
	Args      []string
	ChatID    int64
	ChatType  string
	MessageID int
	UserID    int64
	Username  string
	FullName  string
}

// InGroup reports whether the command was sent from a multi-user chat.
func (c Command) InGroup() bool {
	return c.ChatType == "group" || c.ChatType == "supergroup"
}

// Reply is the answer to a command. An empty Text sends nothing.
type Reply struct {
	Text      string
	ParseMode string
}

func plain(text string) Reply { return Reply{Text: text} }
func htmlReply(text string) Reply {
	return Reply{Text: text, ParseMode: tgbotapi.ModeHTML}
}

// Bot answers user commands. Commands run concurrently with each other and
// with the reminder cycle.
type Bot struct {
	api      UpdatesAPI
	sender   *Sender
	backend  Backend
	bindings store.BindingRegistry
	clans    *cache.Cache[*coc.Clan]
	wars     *cache.Cache[*coc.War]
	now      func() time.Time
	logger   *slog.Logger
}

// NewBot creates a command bot. Lookups of the clan and war are cached
// briefly when cacheEnabled is set; binding validation always hits the
// backend.
func NewBot(api UpdatesAPI, backend Backend, bindings store.BindingRegistry, cacheEnabled bool, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:      api,
		sender:   NewSender(api, logger),
		backend:  backend,
		bindings: bindings,
		clans:    cache.New[*coc.Clan](cacheEnabled),
		wars:     cache.New[*coc.War](cacheEnabled),
		now:      time.Now,
		logger:   logger,
	}
}

// --------------------------------------------------------------------------
// Polling loop
// --------------------------------------------------------------------------

// Run long-polls for updates and dispatches commands until ctx is cancelled.
// In-flight commands are awaited before returning.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(u)

	go b.clans.EvictLoop(ctx, 10*time.Minute)
	go b.wars.EvictLoop(ctx, 10*time.Minute)

	sem := make(chan struct{}, maxConcurrentCmds)
	var wg sync.WaitGroup
	defer wg.Wait()

	b.logger.Info("Telegram bot polling started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegram bot polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			cmd, ok := commandFromUpdate(update)
			if !ok {
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				b.dispatch(ctx, cmd)
			}()
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Command handler panicked", "command", cmd.Name, "panic", r)
		}
	}()

	reply := b.Handle(ctx, cmd)
	if reply.Text == "" {
		return
	}
	if err := b.sender.reply(ctx, cmd.ChatID, cmd.MessageID, reply.Text, reply.ParseMode); err != nil {
		b.logger.Warn("Failed to answer command", "command", cmd.Name, "chat_id", cmd.ChatID, "error", err)
	}
}

func commandFromUpdate(update tgbotapi.Update) (Command, bool) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() || msg.Chat == nil {
		return Command{}, false
	}
	cmd := Command{
		Name:      strings.ToLower(msg.Command()),
		Args:      strings.Fields(msg.CommandArguments()),
		ChatID:    msg.Chat.ID,
		ChatType:  msg.Chat.Type,
		MessageID: msg.MessageID,
	}
	if msg.From != nil {
		cmd.UserID = msg.From.ID
		cmd.Username = msg.From.UserName
		cmd.FullName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	return cmd, true
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Handle executes a command and returns the reply to send.
func (b *Bot) Handle(ctx context.Context, cmd Command) Reply {
	switch cmd.Name {
	case "start", "help":
		return plain(welcomeText)
	case "clan":
		return b.handleClan(ctx)
	case "player":
		return b.handlePlayer(ctx, cmd)
	case "war":
		return b.handleWar(ctx)
	case "bind":
		return b.handleBind(ctx, cmd)
	case "unbind":
		return b.handleUnbind(ctx, cmd)
	case "bindings":
		return b.handleBindings(ctx, cmd)
	default:
		return Reply{}
	}
}

const welcomeText = "Welcome! Use /clan, /player <tag>, or /war to get Clash of Clans info.\n" +
	"In group chats, /bind <player_tag> links you to war attack reminders."

func (b *Bot) handleClan(ctx context.Context) Reply {
	clan, err := b.clans.GetOrLoad("clan", cache.TTLClan, func() (*coc.Clan, error) {
		return b.backend.Clan(ctx)
	})
	if err != nil {
		return plain(b.describe(clanLookup, "clan", err))
	}
	return htmlReply(formatClan(clan))
}

func (b *Bot) handlePlayer(ctx context.Context, cmd Command) Reply {
	if len(cmd.Args) == 0 {
		return plain("Usage: /player <tag>")
	}
	player, err := b.backend.Player(ctx, strings.Join(cmd.Args, ""))
	if err != nil {
		return plain(b.describe(playerLookup, "player", err))
	}
	return htmlReply(formatPlayer(player))
}

func (b *Bot) handleWar(ctx context.Context) Reply {
	war, err := b.wars.GetOrLoad("war", cache.TTLWar, func() (*coc.War, error) {
		return b.backend.War(ctx)
	})
	if err != nil {
		return plain(b.describe(warLookup, "war", err))
	}
	return htmlReply(formatWar(war, b.now()))
}

func (b *Bot) handleBind(ctx context.Context, cmd Command) Reply {
	if !cmd.InGroup() {
		return plain(groupOnlyText)
	}
	tag := coc.NormalizeTag(strings.Join(cmd.Args, ""))
	if tag == "" {
		return plain("Usage: /bind <player_tag>")
	}
	if cmd.UserID == 0 {
		return Reply{}
	}

	if _, err := b.backend.Player(ctx, tag); err != nil {
		return plain(b.describe(bindLookup, "bind", err))
	}

	name := or(cmd.FullName, cmd.Username)
	err := b.bindings.Upsert(ctx, store.Binding{
		UserID:      cmd.UserID,
		GroupID:     cmd.ChatID,
		DisplayName: name,
		Username:    cmd.Username,
		PlayerTag:   tag,
	})
	if err != nil {
		b.logger.Error("Failed to save binding", "user_id", cmd.UserID, "group_id", cmd.ChatID, "error", err)
		return plain("Could not save the binding. Please try again later.")
	}
	b.logger.Info("Binding saved", "user_id", cmd.UserID, "group_id", cmd.ChatID, "tag", tag)
	return plain("Bound " + tag + " to " + name + " in this group.")
}

func (b *Bot) handleUnbind(ctx context.Context, cmd Command) Reply {
	if !cmd.InGroup() {
		return plain(groupOnlyText)
	}
	if cmd.UserID == 0 {
		return Reply{}
	}
	removed, err := b.bindings.Remove(ctx, cmd.UserID, cmd.ChatID)
	if err != nil {
		b.logger.Error("Failed to remove binding", "user_id", cmd.UserID, "group_id", cmd.ChatID, "error", err)
		return plain("Could not remove the binding. Please try again later.")
	}
	if !removed {
		return plain("No binding found for you in this group.")
	}
	b.logger.Info("Binding removed", "user_id", cmd.UserID, "group_id", cmd.ChatID)
	return plain("Binding removed for this group.")
}

func (b *Bot) handleBindings(ctx context.Context, cmd Command) Reply {
	if !cmd.InGroup() {
		return plain(groupOnlyText)
	}
	bindings, err := b.bindings.ListByGroup(ctx, cmd.ChatID)
	if err != nil {
		b.logger.Error("Failed to list bindings", "group_id", cmd.ChatID, "error", err)
		return plain("Could not load bindings. Please try again later.")
	}
	return htmlReply(formatBindings(bindings))
}

const groupOnlyText = "This command can only be used in group chats."

// --------------------------------------------------------------------------
// Backend failures
// --------------------------------------------------------------------------

const (
	unreachableText = "Backend is unreachable. Please try again later."
	rateLimitedText = "Rate limit reached. Please try again later."
	timeoutText     = "Backend timed out contacting Clash of Clans."
)

// lookupMessages holds the command-specific failure texts.
type lookupMessages struct {
	invalid  string
	notFound string
	generic  string
}

var (
	clanLookup = lookupMessages{
		invalid:  "Invalid clan tag configured.",
		notFound: "Clan not found.",
		generic:  "Backend error while fetching clan data.",
	}
	warLookup = lookupMessages{
		invalid:  "Invalid clan tag configured.",
		notFound: "War data is not available. The war log may be private.",
		generic:  "Backend error while fetching war data.",
	}
	playerLookup = lookupMessages{
		invalid:  "Invalid player tag format.",
		notFound: "Player not found.",
		generic:  "Backend error while fetching player data.",
	}
	bindLookup = lookupMessages{
		invalid:  "Invalid player tag format.",
		notFound: "Player not found.",
		generic:  "Backend error while validating player.",
	}
)

func (b *Bot) describe(m lookupMessages, command string, err error) string {
	if errors.Is(err, coc.ErrUnreachable) {
		b.logger.Warn("Backend unreachable", "command", command, "error", err)
		return unreachableText
	}
	status := coc.StatusCode(err)
	b.logger.Warn("Backend error", "command", command, "status", status, "error", err)
	switch status {
	case 400:
		return m.invalid
	case 404:
		return m.notFound
	case 429:
		return rateLimitedText
	case 504:
		return timeoutText
	default:
		return m.generic
	}
}
