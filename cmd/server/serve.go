package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/yukikurage/trade-erp-api/internal/config"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/database"
	"github.com/yukikurage/trade-erp-api/internal/handlers"
	"github.com/yukikurage/trade-erp-api/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := database.Connect(cfg); err != nil {
			return err
		}
		return database.Migrate()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)

	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.LiveRedisFanout {
		if err := pingRedis(cfg.RedisAddr()); err != nil {
			return err
		}
		go a.publisher.Run(ctx)
		go a.relay.Run(ctx)
		log.Printf("Live updates fan out through Redis at %s", cfg.RedisAddr())
	}

	store, err := newSessionStore(cfg)
	if err != nil {
		return err
	}

	r := gin.Default()
	r.Use(sessions.Sessions(constants.SessionCookieName, store))
	registerRoutes(r, a)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newSessionStore returns the Redis store, or a signed cookie store when
// SESSION_STORE=cookie.
func newSessionStore(cfg *config.Config) (sessions.Store, error) {
	opts := sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.IsRelease(),
		SameSite: http.SameSiteLaxMode,
	}

	if cfg.SessionStore == "cookie" {
		store := cookie.NewStore([]byte(cfg.SessionSecret))
		store.Options(opts)
		return store, nil
	}

	store, err := redisStore.NewStore(
		10,              // Redis pool size
		"tcp",           // network type
		cfg.RedisAddr(), // Redis address from config
		"",              // username (empty for default user)
		"",              // password (empty = no password)
		[]byte(cfg.SessionSecret),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis session store: %w", err)
	}
	store.Options(opts)
	return store, nil
}

func registerRoutes(r *gin.Engine, a *app) {
	authHandler := handlers.NewAuthHandler(a.auth)
	teamHandler := handlers.NewTeamHandler(a.teams)
	listHandler := handlers.NewTaskListHandler(a.board)
	taskHandler := handlers.NewTaskHandler(a.board)
	commHandler := handlers.NewCommunicationHandler(a.communications)
	liveHandler := handlers.NewLiveHandler(a.hub, a.board)
	fileHandler := handlers.NewFileHandler(a.store)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Trade ERP API is running",
			"version": version,
		})
	})

	// Document links are shared with recipients, so they stay public
	r.GET("/files/*name", fileHandler.GetFile)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", middleware.RequireAuth(), authHandler.GetCurrentUser)
		}

		teams := api.Group("/teams")
		teams.Use(middleware.RequireAuth())
		{
			teams.POST("", teamHandler.CreateTeam)
			teams.GET("", teamHandler.ListTeams)
			teams.POST("/join", teamHandler.JoinTeam)

			team := teams.Group("/:id", middleware.RequireTeamAccess())
			team.GET("", teamHandler.GetTeam)
			team.GET("/lists", listHandler.ListTaskLists)
			team.POST("/lists", listHandler.CreateTaskList)
			team.PUT("", middleware.RequireTeamOwner(), teamHandler.UpdateTeam)
			team.DELETE("", middleware.RequireTeamOwner(), teamHandler.DeleteTeam)
			team.POST("/regenerate-code", middleware.RequireTeamOwner(), teamHandler.RegenerateInviteCode)
			team.DELETE("/members/:user_id", middleware.RequireTeamOwner(), teamHandler.RemoveMember)
		}

		lists := api.Group("/lists/:id")
		lists.Use(middleware.RequireAuth(), middleware.RequireTaskListAccess(a.board))
		{
			lists.PATCH("", listHandler.RenameTaskList)
			lists.DELETE("", listHandler.DeleteTaskList)
			lists.POST("/move", listHandler.MoveTaskList)
			lists.GET("/tasks", taskHandler.ListTasks)
			lists.POST("/tasks", taskHandler.CreateTask)
		}

		tasks := api.Group("/tasks/:id")
		tasks.Use(middleware.RequireAuth(), middleware.RequireTaskAccess(a.board))
		{
			tasks.GET("", taskHandler.GetTask)
			tasks.PATCH("", taskHandler.UpdateTask)
			tasks.DELETE("", taskHandler.DeleteTask)
			tasks.POST("/move", taskHandler.MoveTask)
			tasks.POST("/assign", taskHandler.AssignTask)
			tasks.POST("/unassign", taskHandler.UnassignTask)
		}

		comms := api.Group("/communications")
		comms.Use(middleware.RequireAuth())
		{
			comms.GET("", commHandler.ListCommunications)
			comms.POST("/eligible", commHandler.Eligible)
			comms.POST("/transition", commHandler.Transition)
			comms.POST("/preview", commHandler.Preview)
			comms.POST("/send", commHandler.Send)
			comms.GET("/:id", commHandler.GetCommunication)
			comms.POST("/:id/resend", commHandler.Resend)
		}

		live := api.Group("/live")
		live.Use(middleware.RequireAuth())
		{
			live.GET("/ws", liveHandler.WebSocket)
			live.GET("/sse", liveHandler.Stream)
		}
	}
}
