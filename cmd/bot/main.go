// Command bot is the Clash of Clans Telegram bot: chat commands, periodic war
// attack reminders, cooldown maintenance and the admin API.
//
// Usage:
//
//	TELEGRAM_BOT_TOKEN=... coc-bot
//	DATABASE_URL=postgres://... WAR_REMINDER_INTERVAL=5m coc-bot
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Alexey3476/CoC-Telegramm/internal/api"
	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
	"github.com/Alexey3476/CoC-Telegramm/internal/config"
	"github.com/Alexey3476/CoC-Telegramm/internal/maintenance"
	"github.com/Alexey3476/CoC-Telegramm/internal/reminder"
	"github.com/Alexey3476/CoC-Telegramm/internal/store"
	"github.com/Alexey3476/CoC-Telegramm/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.RequireTelegram(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Open store
	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("Store opened", "postgres", cfg.UsesPostgres(), "path", cfg.DatabasePath)

	// Collaborators
	backend := coc.NewClient(cfg.BackendURL, cfg.RequestTimeout, cfg.BackendRequestsPerMinute, logger)

	tg, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Error("Failed to connect to Telegram", "error", err)
		os.Exit(1)
	}
	logger.Info("Telegram authorized", "bot", tg.Self.UserName)

	// Reminder engine
	scheduler := reminder.NewScheduler(reminder.Deps{
		Wars:      backend,
		Bindings:  st,
		Cooldowns: st,
		Notifier:  telegram.NewSender(tg, logger),
	}, reminder.Config{
		Window:   cfg.Reminder.Window,
		Cooldown: cfg.Reminder.Cooldown,
		Workers:  cfg.Reminder.Workers,
	}, logger)
	driver := reminder.NewDriver(scheduler, cfg.Reminder.Interval, cfg.Reminder.Enabled, logger)

	bot := telegram.NewBot(tg, backend, st, cfg.CacheEnabled, logger)

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() { driver.Run(ctx) })
	spawn(func() { bot.Run(ctx) })
	spawn(func() {
		maintenance.Start(ctx, st, maintenance.Config{
			PruneInterval: cfg.MaintenanceInterval,
			Retention:     cfg.CooldownRetention,
			Cooldown:      cfg.Reminder.Cooldown,
		}, logger)
	})

	// Admin API
	var srv *http.Server
	if cfg.APIEnabled {
		addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
		srv = &http.Server{
			Addr:         addr,
			Handler:      api.NewRouter(st, driver, cfg),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute, // manual cycles can be slow
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("Starting admin API", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server failed", "error", err)
				cancel()
			}
		}()
	}

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	}
	wg.Wait()
	logger.Info("Bot stopped")
}
