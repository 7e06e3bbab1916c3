package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskbot/internal/bot"
	"taskbot/internal/config"
	"taskbot/internal/notify"
	"taskbot/internal/repository"
	"taskbot/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("bot api: %v", err)
	}
	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	creds := notify.NewTokenCache(notify.StaticToken(cfg.BotToken))
	notifier := notify.NewTelegramNotifier(creds).WithAPI(cfg.BotToken, api)

	workload := service.NewWorkloadResolver(userRepo, taskRepo)
	taskSvc := service.NewTaskService(taskRepo, userRepo, workload, notifier)
	reminderSvc := service.NewReminderService(taskRepo, notifier)
	templateSvc := service.NewTemplateService(templateRepo, taskSvc)

	telegramBot := bot.New(api, &cfg, userRepo, sessionRepo, templateRepo, taskSvc, reminderSvc)

	scheduler := service.NewSchedulerService(time.Local)
	if _, err := scheduler.ScheduleIntervalAtStart(cfg.CheckInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := templateSvc.RunOnce(jobCtx, time.Now()); err != nil {
			log.Printf("template run: %v", err)
		} else if n > 0 {
			log.Printf("[info] template run materialized %d task(s)", n)
		}
	}); err != nil {
		log.Fatalf("schedule template runner: %v", err)
	}
	if _, err := scheduler.ScheduleIntervalAtStart(cfg.SweepInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := reminderSvc.Sweep(jobCtx, time.Now()); err != nil {
			log.Printf("reminder sweep: %v", err)
		} else if n > 0 {
			log.Printf("[info] reminder sweep sent %d notification(s)", n)
		}
	}); err != nil {
		log.Fatalf("schedule reminder sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Taskbot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
