package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"adminbot/store"
	"adminbot/telegram"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.RedisAddr)
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		log.Printf("warning: redis at %s ping failed: %v", cfg.RedisAddr, err)
	}

	tg, err := telegram.NewClient(cfg.Token)
	if err != nil {
		log.Fatal(err)
	}
	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Fatalf("getMe failed: %v", err)
	}
	log.Printf("authorized as @%s (id %d)", me.Username, me.ID)

	bot := NewBot(cfg, tg, st, me)

	go startHealthServer(cfg.Port)
	if cfg.KeepAliveURL != "" {
		go keepAlive(ctx, cfg.KeepAliveURL)
	}

	if cfg.AdminID != 0 {
		notice := "🚀 *Bot Iniciado*\n\n" +
			fmt.Sprintf("*Bot:* @%s\n", me.Username) +
			fmt.Sprintf("*Hora:* %s\n\n", time.Now().Format("02/01/2006 15:04")) +
			"El bot está listo para administrar grupos."
		if err := tg.SendText(ctx, cfg.AdminID, 0, notice, nil, "Markdown"); err != nil {
			log.Printf("startup notification: %v", err)
		}
	}

	log.Println("polling for updates")
	offset := 0
	for {
		if ctx.Err() != nil {
			log.Println("shutting down")
			return
		}
		updates, err := tg.GetUpdates(ctx, offset, 30)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down")
				return
			}
			log.Printf("getUpdates: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			bot.HandleUpdate(ctx, u)
		}
	}
}
