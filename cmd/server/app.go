package main

import (
	"fmt"
	"log"

	"github.com/gomodule/redigo/redis"
	"github.com/yukikurage/trade-erp-api/internal/config"
	"github.com/yukikurage/trade-erp-api/internal/database"
	"github.com/yukikurage/trade-erp-api/internal/messaging"
	"github.com/yukikurage/trade-erp-api/internal/realtime"
	"github.com/yukikurage/trade-erp-api/internal/render"
	"github.com/yukikurage/trade-erp-api/internal/repository"
	"github.com/yukikurage/trade-erp-api/internal/services"
	"github.com/yukikurage/trade-erp-api/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// app holds the wired services shared by the serve and mcp commands.
type app struct {
	cfg            *config.Config
	hub            *realtime.Hub
	publisher      *realtime.RedisPublisher
	relay          *realtime.RedisRelay
	store          *storage.LocalStore
	auth           *services.AuthService
	teams          *services.TeamService
	board          *services.BoardService
	communications *services.CommunicationService
}

// newApp connects to the database and builds every service. The database
// must already be migrated. With stdio set nothing may be written to stdout,
// so SQL logging is dropped.
func newApp(cfg *config.Config, stdio bool) (*app, error) {
	if err := database.Connect(cfg); err != nil {
		return nil, err
	}
	db := database.GetDB()
	if stdio {
		db = db.Session(&gorm.Session{Logger: logger.Discard})
		database.SetDB(db)
	}

	a := &app{cfg: cfg, hub: realtime.NewHub()}

	// Board changes reach local subscribers directly, or every instance
	// through Redis when fanout is on.
	var publisher realtime.Publisher = a.hub
	if cfg.LiveRedisFanout {
		pool := realtime.NewRedisPool(cfg.RedisAddr())
		a.publisher = realtime.NewRedisPublisher(pool)
		a.relay = realtime.NewRedisRelay(pool, a.hub)
		publisher = a.publisher
	}

	store, err := storage.NewLocalStore(cfg.StorageDir, cfg.StorageBaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening document storage: %w", err)
	}
	a.store = store

	renderer, err := render.New()
	if err != nil {
		return nil, fmt.Errorf("loading document templates: %w", err)
	}

	var drafter services.MessageDrafter = services.TemplateDrafter{}
	if ai := services.NewAIService(cfg.OpenAIAPIKey); ai.Enabled() {
		drafter = ai
	}

	a.auth = services.NewAuthService(repository.NewUserRepository(db))
	a.teams = services.NewTeamService(repository.NewTeamRepository(db))
	a.board = services.NewBoardService(
		repository.NewTaskRepository(db),
		repository.NewTaskListRepository(db),
		repository.NewTeamRepository(db),
		publisher,
		cfg.ReorderMaxAttempts,
	)
	a.communications = services.NewCommunicationService(
		repository.NewCommunicationRepository(db),
		renderer,
		store,
		messaging.NewDispatcher(newGateway(cfg)),
		drafter,
	)
	return a, nil
}

// newGateway picks a sender per channel; channels without credentials only log.
func newGateway(cfg *config.Config) messaging.Gateway {
	var email messaging.EmailSender = messaging.LogGateway{}
	if cfg.SMTPHost != "" {
		email = messaging.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		log.Println("SMTP not configured, emails are only logged")
	}

	var whatsapp messaging.WhatsAppSender = messaging.LogGateway{}
	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		whatsapp = messaging.NewWhatsAppCloud(cfg.WhatsAppAPIURL, cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID)
	} else {
		log.Println("WhatsApp not configured, messages are only logged")
	}

	return messaging.NewGateway(email, whatsapp)
}

// pingRedis fails fast when a Redis dependency is configured but unreachable.
func pingRedis(addr string) error {
	conn, err := redis.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		return fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return nil
}
