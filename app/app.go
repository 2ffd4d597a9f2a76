package roomchat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/putto11262002/roomchat/core"
	"github.com/putto11262002/roomchat/pkg/logger"
	"github.com/putto11262002/roomchat/pkg/router"
	templatestore "github.com/putto11262002/roomchat/pkg/template"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config      *Config
	db          *core.SQLiteDB
	context     context.Context
	server      *http.Server
	logger      *slog.Logger
	router      *router.Router
	eventRouter *core.EventRouter
	wsManager   *core.ConnManager

	users     core.UserStore
	bans      core.BanStore
	invites   core.InviteStore
	chatStore core.ChatStore
	authStore core.AuthStore
	admins    *core.AdminList
	servers   *core.ServerList

	templates *templatestore.TemplStore
	staticFS  *StaticFS

	commands map[string]Command
	limiter  *sendLimiter
	now      func() time.Time

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

// New wires the application from a validated config. When ctx is nil the
// application stops on SIGINT, SIGTERM, SIGQUIT or SIGHUP.
func New(ctx context.Context, config *Config) (*App, error) {
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	app := &App{
		config:  config,
		context: ctx,
		now:     time.Now,
	}
	app.logger = logger.New(os.Stdout, config.Log.Level)

	if err := app.openStores(); err != nil {
		app.shutdown(context.Background())
		return nil, err
	}

	app.wsManager = core.NewConnManager(app.context, &app.wg, app.logger,
		core.WithReadLimit(config.WS.ReadLimit),
		core.WithCheckOrigin(app.checkOrigin))
	app.wsManager.OnConnectionOpened(app.onConnectionOpen)
	app.wsManager.OnConnectionClosed(app.onConnectionClose)

	app.eventRouter = core.NewEventRouter(app.context, app.logger, app.wsManager)
	app.eventRouter.On(AuthEvent, app.AuthEventHandler)
	app.eventRouter.On(MessageEvent, app.MessageEventHandler)
	app.eventRouter.On(GetHistoryEvent, app.GetHistoryEventHandler)
	app.eventRouter.On(DeleteMessageEvent, app.DeleteMessageEventHandler)
	app.eventRouter.On(JoinChatEvent, app.JoinChatEventHandler)
	app.eventRouter.On(GenerateInviteEvent, app.GenerateInviteEventHandler)
	app.eventRouter.On(SubmitAppealEvent, app.SubmitAppealEventHandler)
	app.eventRouter.On(BanUserEvent, app.BanUserEventHandler)

	app.commands = app.commandTable()
	app.limiter = newSendLimiter(config.Chat.MinInterval)

	var err error
	app.templates, err = templatestore.NewTemplStore(templatesFS(), nil)
	if err != nil {
		app.shutdown(context.Background())
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	var public fs.FS = embeddedPublicFS()
	if config.PublicDir != "" {
		public = os.DirFS(config.PublicDir)
	}
	cacheControl := map[string]string{}
	if config.Mode == ProdMode {
		cacheControl = map[string]string{"css/*": "public, max-age=3600", "js/*": "public, max-age=3600"}
	}
	app.staticFS, err = NewStaticFS(public, cacheControl)
	if err != nil {
		app.shutdown(context.Background())
		return nil, fmt.Errorf("load static files: %w", err)
	}

	app.routes()

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Hostname, config.Port),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}
	if config.Mode == ProdMode {
		app.server.TLSConfig = tlsConfig()
	}
	return app, nil
}

func (app *App) openStores() error {
	cfg := app.config
	for _, dir := range []string{cfg.Storage.ConfigDir, cfg.Storage.DataDir, cfg.Media.Dir, filepath.Dir(cfg.SQLite.File)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	superAdmin := cfg.Auth.SuperAdmin
	configFile := func(name string) string { return filepath.Join(cfg.Storage.ConfigDir, name) }

	users := core.NewJSONUserStore(configFile("users.json"), superAdmin)
	bans := core.NewJSONBanStore(configFile("bans.json"))
	invites := core.NewJSONInviteStore(configFile("invites.json"))
	chats := core.NewJSONChatStore(filepath.Join(cfg.Storage.DataDir, "messages.json"))
	app.admins = core.NewAdminList(configFile("admins.json"), superAdmin)
	app.servers = core.NewServerList(configFile("servers.json"))

	loaders := []interface{ Load() error }{users, bans, invites, chats, app.admins, app.servers}
	for _, l := range loaders {
		if err := l.Load(); err != nil {
			return err
		}
	}
	app.users, app.bans, app.invites, app.chatStore = users, bans, invites, chats

	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	db, err := core.NewSQLiteDB(cfg.SQLite.File, sqliteOptions)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	app.db = db
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	app.authStore = core.NewSQLiteAuthStore(app.db.DB, cfg.Auth.Secret, core.WithTokenExp(cfg.Auth.SessionTTL))
	return nil
}

func (app *App) routes() {
	app.router = router.New(router.WithLogger(app.logger))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: !slices.Contains(app.config.AllowedOrigins, "*"),
	}))

	app.router.Group(func(r *router.Router) {
		r.Use(core.SessionMiddleware(app.authStore))
		r.Get("/", app.IndexHandler)
		r.Get("/login", app.LoginPageHandler)
		r.Post("/login", app.LoginHandler)
		r.Get("/register", app.RegisterPageHandler)
		r.Post("/register", app.RegisterHandler)
		r.Get("/logout", app.LogoutHandler)
		r.Post("/upload", app.UploadHandler)
		r.Get("/ws", app.WSHandler)
	})

	app.router.Route("/api", func(r *router.Router) {
		r.Use(core.RequireSession(app.authStore))
		r.Get("/me", app.MeHandler)
		r.Get("/rooms", app.RoomsHandler)
	})

	app.router.Router.Handle(imageURLPrefix+"*", app.imagesHandler())
	app.router.Router.Handle("/static/*", http.StripPrefix("/static", app.staticFS))
}

// Handler returns the root HTTP handler.
func (app *App) Handler() http.Handler {
	return app.router
}

func (app *App) listen() {
	app.eventRouter.Listen()
	app.AddCleanupFunc(func(ctx context.Context) {
		app.wsManager.Close()
		if err := app.eventRouter.Close(ctx); err != nil {
			app.logger.Error("closing event router", slog.String("err", err.Error()))
		}
	})
}

// Start serves until the context of the application is done or the server
// fails, then shuts down gracefully.
func (app *App) Start() error {
	app.listen()
	app.AddCleanupFunc(func(ctx context.Context) {
		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Error("shutting down server", slog.String("err", err.Error()))
		}
	})

	app.logger.Info(fmt.Sprintf("app running in %s mode on: %s:%d",
		app.config.Mode, app.config.Hostname, app.config.Port))

	serveErr := make(chan error, 1)
	go func() {
		if app.config.TLS.Key != "" && app.config.TLS.Crt != "" {
			serveErr <- app.server.ListenAndServeTLS(app.config.TLS.Crt, app.config.TLS.Key)
			return
		}
		serveErr <- app.server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-app.context.Done():
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if shutdownErr := app.shutdown(closeCtx); shutdownErr != nil {
		return errors.Join(err, shutdownErr)
	}
	return err
}

// shutdown runs the cleanup functions in reverse order of registration and
// waits for the connections to finish.
func (app *App) shutdown(ctx context.Context) error {
	for _, f := range slices.Backward(app.cleanupFuncs) {
		f(ctx)
	}
	app.cleanupFuncs = nil

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		app.logger.Info("app shutdown gracefully")
		return nil
	case <-ctx.Done():
		app.logger.Info("app shutdown timed out")
		return ctx.Err()
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}
