package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	auth "github.com/classiqueozofficial1-web/stockfx-auth"
	"github.com/classiqueozofficial1-web/stockfx-auth/config"
	"github.com/classiqueozofficial1-web/stockfx-auth/database"
	"github.com/classiqueozofficial1-web/stockfx-auth/mailer"
)

const usage = `usage: stockfx-auth [-config path] <command> [flags]

commands:
  serve                              start the HTTP server (default)
  migrate                            create tables and indexes
  create-admin -email E -password P  create an active admin account
`

type App struct {
	cfg      *config.Config
	zap      *zap.Logger
	logger   *auth.ZapLogger
	db       *bun.DB
	repo     auth.RepositoryManager
	notifier auth.Notifier
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("stockfx-auth", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	printConfig := fs.Bool("print-config", false, "print the effective config")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if *printConfig {
		fmt.Println(print.MaybeHighlightJSON(cfg.Redacted()))
	}

	command, rest := "serve", fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	switch command {
	case "serve":
		if err := cfg.Validate(); err != nil {
			return err
		}
		return app.Serve(ctx)
	case "migrate":
		return app.repo.Migrate(ctx)
	case "create-admin":
		return app.CreateAdmin(ctx, rest)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	zl, err := cfg.Log.BuildLogger()
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:    cfg,
		zap:    zl,
		logger: auth.NewZapLogger(zl),
	}

	app.db, err = database.Open(ctx, cfg.DatabaseConfig())
	if err != nil {
		return nil, err
	}

	app.repo = auth.NewRepositoryManager(app.db)
	app.repo.MustValidate()

	if cfg.SMTP.Host != "" {
		app.notifier = mailer.New(cfg.MailerConfig(), app.logger.Named("mailer"))
	} else {
		app.logger.Warn("smtp host not configured, notifications are only logged")
		app.notifier = auth.NewLogNotifier(app.logger.Named("notifier"))
	}

	return app, nil
}

func (a *App) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
}

func (a *App) Serve(ctx context.Context) error {
	if err := a.repo.Migrate(ctx); err != nil {
		return err
	}

	activity := auth.NewLoggerActivitySink(a.logger.Named("activity"))
	hasher := auth.NewBcryptHasher(a.cfg.Auth.BcryptCost)

	verifier := auth.NewVerifier(a.repo.Accounts(),
		auth.WithPolicy(a.cfg.Policy()),
		auth.WithPasswordHasher(hasher),
		auth.WithNotifier(a.notifier),
		auth.WithVerifierLogger(a.logger.Named("verifier")),
		auth.WithVerifierActivitySink(activity),
	)

	lifecycle := auth.NewLifecycle(a.repo,
		auth.WithLifecycleNotifier(a.notifier),
		auth.WithLifecycleLogger(a.logger.Named("lifecycle")),
		auth.WithLifecycleActivitySink(activity),
	)

	tokens := auth.NewTokenServiceFromConfig(a.cfg.Auth, a.logger.Named("tokens"))
	auther := auth.NewAuthenticator(verifier, tokens).WithLogger(a.logger.Named("authenticator"))
	if ring := tokens.WithRetiredKeys(a.cfg.Auth.PreviousKeys...); ring.Retired() > 0 {
		a.logger.Info("accepting tokens signed with retired keys", "count", ring.Retired())
		auther = auther.WithTokenValidator(ring)
	}

	controller := auth.NewController(
		auth.WithControllerLogger(a.logger.Named("http")),
		auth.WithControllerDebug(a.cfg.Server.Debug),
		auth.WithVerifier(verifier),
		auth.WithLifecycle(lifecycle),
		auth.WithAuthenticator(auther),
	)

	srv := fiber.New(fiber.Config{
		AppName:               "stockfx-auth",
		ReadTimeout:           a.cfg.Server.ReadTimeout,
		WriteTimeout:          a.cfg.Server.WriteTimeout,
		DisableStartupMessage: true,
	})
	auth.RegisterRoutes(srv, controller)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "address", a.cfg.Server.Address)
		errCh <- srv.Listen(a.cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	if err := srv.ShutdownWithTimeout(a.cfg.Server.ShutdownTimeout); err != nil {
		a.logger.Error("http server shutdown failed", "error", err)
		return err
	}

	return nil
}

func (a *App) CreateAdmin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	email := fs.String("email", "", "admin email")
	password := fs.String("password", "", "admin password")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.repo.Migrate(ctx); err != nil {
		return err
	}

	account, err := auth.ProvisionAdmin(ctx,
		a.repo.Accounts(),
		auth.NewBcryptHasher(a.cfg.Auth.BcryptCost),
		*email,
		*password,
		auth.Profile{FirstName: *firstName, LastName: *lastName},
	)
	if err != nil {
		return err
	}

	a.logger.Info("admin account created", "account_id", account.ID, "email", account.Email)
	return nil
}
