package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-auth-lifecycle/activitymap"
	"github.com/goliatone/go-auth-lifecycle/provider/httpapi"
	"github.com/goliatone/go-auth-lifecycle/repository"
	"github.com/goliatone/go-auth-lifecycle/tokenstore"
	"github.com/goliatone/go-print"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// app is the per-invocation wiring: one manager over one credential store.
type app struct {
	settings Settings
	manager  *lifecycle.Manager
	prompt   *prompter
	out      io.Writer
	errOut   io.Writer
	closers  []func() error
}

func newApp(ctx context.Context, s Settings, in io.Reader, out, errOut io.Writer) (*app, error) {
	a := &app{
		settings: s,
		prompt:   newPrompter(in, errOut),
		out:      out,
		errOut:   errOut,
	}

	logger := &cliLogger{out: errOut, verbose: s.Verbose}

	cfg := lifecycle.DefaultConfig()
	if s.ConfigPath != "" {
		loaded, err := lifecycle.LoadConfig(s.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	inspector, err := a.inspector(logger)
	if err != nil {
		a.close()
		return nil, err
	}

	apiCfg := httpapi.DefaultConfig(s.APIURL)
	apiCfg.Timeout = s.Timeout
	apiCfg.UserAgent = "authctl"
	apiCfg.Logger = logger

	opts := []lifecycle.Option{
		lifecycle.WithConfig(cfg),
		lifecycle.WithLogger(logger),
		lifecycle.WithTokenStore(store),
		lifecycle.WithCredentialInspector(inspector),
		lifecycle.WithNotificationSink(lifecycle.NotificationSinkFunc(a.notify)),
	}
	if s.Verbose {
		opts = append(opts, lifecycle.WithActivitySink(activitymap.Sink(func(n activitymap.Normalized) {
			fmt.Fprintf(errOut, "activity %s\n", print.MaybePrettyJSON(n))
		}, activitymap.WithDefaultChannel("authctl"))))
	}

	manager, err := lifecycle.NewManager(httpapi.NewClient(apiCfg), opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.manager = manager
	a.closers = append([]func() error{manager.Close}, a.closers...)

	if _, err := manager.Hydrate(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (lifecycle.TokenStore, error) {
	var store lifecycle.TokenStore

	if a.settings.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.settings.RedisAddr})
		a.closers = append(a.closers, client.Close)

		var opts []tokenstore.RedisOption
		if a.settings.RedisKey != "" {
			opts = append(opts, tokenstore.WithRedisKey(a.settings.RedisKey))
		}
		store = tokenstore.NewRedis(client, opts...)
	} else {
		repo, err := a.openSQLite(ctx)
		if err != nil {
			return nil, err
		}
		store = repo
	}

	if a.settings.Passphrase == "" {
		return store, nil
	}
	return tokenstore.NewSealedFromPassphrase(store, a.settings.Passphrase, "authctl")
}

func (a *app) openSQLite(ctx context.Context) (*repository.CredentialRepository, error) {
	path := a.settings.StorePath
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	a.closers = append(a.closers, db.Close)

	repo := repository.NewCredentialRepository(db)
	if err := repo.CreateTable(ctx); err != nil {
		return nil, fmt.Errorf("prepare credential store: %w", err)
	}
	return repo, nil
}

func (a *app) inspector(logger lifecycle.Logger) (lifecycle.CredentialInspector, error) {
	if a.settings.JWKSURL == "" {
		return lifecycle.NewJWTInspector(), nil
	}

	inspector, stop, err := lifecycle.NewJWKSInspector(a.settings.JWKSURL, 0, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		stop()
		return nil
	})
	return inspector, nil
}

func (a *app) notify(n lifecycle.Notification) {
	prefix := "✓"
	switch n.Kind {
	case lifecycle.NotificationError:
		prefix = "✗"
	case lifecycle.NotificationWarning:
		prefix = "!"
	}
	if n.Detail != "" {
		fmt.Fprintf(a.errOut, "%s %s: %s\n", prefix, n.Summary, n.Detail)
		return
	}
	fmt.Fprintf(a.errOut, "%s %s\n", prefix, n.Summary)
}

func (a *app) close() error {
	var first error
	for _, fn := range a.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

type cliLogger struct {
	out     io.Writer
	verbose bool
}

func (l *cliLogger) Debug(format string, args ...any) {
	if l.verbose {
		fmt.Fprintf(l.out, "[DBG] "+line(format), args...)
	}
}

func (l *cliLogger) Info(format string, args ...any) {
	if l.verbose {
		fmt.Fprintf(l.out, "[INF] "+line(format), args...)
	}
}

func (l *cliLogger) Warn(format string, args ...any) {
	if l.verbose {
		fmt.Fprintf(l.out, "[WRN] "+line(format), args...)
	}
}

func (l *cliLogger) Error(format string, args ...any) {
	fmt.Fprintf(l.out, "[ERR] "+line(format), args...)
}

func line(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
