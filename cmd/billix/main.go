// Command billix is the client for the Billix quota, token and entitlement backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/billix-app/billix/internal/app"
	"github.com/billix-app/billix/internal/billapi"
	"github.com/billix-app/billix/internal/config"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/metrics"
	"github.com/billix-app/billix/internal/migrate"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// errUsage reports a malformed command line.
var errUsage = errors.New("usage")

func usage() {
	fmt.Fprintf(os.Stderr, `billix CLI
Usage:
  billix [-env file] [-db DSN] [-api URL] <cmd> [args]

Commands:
  version
  migrate    [-status]                        apply the embedded schema
  login      -token <jwt>                     (saves session)
  logout
  usage                                       weekly quota snapshot
  consume    -points <n>                      check and record quota usage
  tokens                                      token balance
  token-use  -ref <id>
  token-refund -ref <id>
  token-buy                                   purchase a token pack
  member                                      refresh entitlement
  subscribe                                   purchase membership
  upload     -file <path>                     analyze a bill
  ask        -q <question> [-context file]
  settings                                    tutorial settings
  streak     [-touch]
  checkin | tasks | news
  task-progress -id <task> [-n amount]
  task-claim -id <task>
`)
	os.Exit(2)
}

// main loads configuration, wires the application and dispatches a subcommand.
func main() {
	envFile := flag.String("env", "", "env file to load")
	dsn := flag.String("db", "", "backend Postgres DSN (overrides BILLIX_DATABASE_URL)")
	apiBase := flag.String("api", "", "REST base URL (overrides BILLIX_API_BASE_URL)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if cmd == "version" {
		fmt.Printf("billix %s (%s)\n", version, buildDate)
		return
	}

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fail(zap.NewNop(), err)
	}
	if *dsn != "" {
		cfg.DatabaseURL = *dsn
	}
	if *apiBase != "" {
		cfg.APIBaseURL = strings.TrimRight(*apiBase, "/")
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		fail(zap.NewNop(), err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CommandTimeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fail(logger, err)
	}
	defer a.Close()

	out, err := run(ctx, a, cmd, flag.Args()[1:])
	if cfg.PushgatewayURL != "" {
		if perr := metrics.Push(ctx, cfg.PushgatewayURL, "billix_"+cmd); perr != nil {
			logger.Warn("push metrics", zap.Error(perr))
		}
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		usage()
	}
	if err != nil {
		a.Close()
		fail(logger, err)
	}
	if out != nil {
		printJSON(os.Stdout, out)
	}
}

// run executes one subcommand and returns the value to print.
func run(ctx context.Context, a *app.App, cmd string, args []string) (any, error) {
	switch cmd {
	case "migrate":
		return cmdMigrate(ctx, a, args)
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		tok := fs.String("token", "", "access token")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *tok == "" {
			return nil, fmt.Errorf("%w: need -token", errUsage)
		}
		s, err := a.Login(*tok)
		if err != nil {
			return nil, err
		}
		return map[string]any{"user_id": s.UserID, "expires_at": s.ExpiresAt}, nil
	case "logout":
		return nil, a.Logout()
	case "upload":
		return cmdUpload(ctx, a, args)
	case "ask":
		return cmdAsk(ctx, a, args)
	}

	if err := a.RequireDB(); err != nil {
		return nil, err
	}
	ctx, err := a.SessionContext(ctx)
	if err != nil && cmd != "settings" && cmd != "news" {
		return nil, err
	}

	switch cmd {
	case "usage":
		refreshTier(ctx, a)
		if _, err := a.RateLimit.GetRemainingCalls(ctx); err != nil {
			return nil, err
		}
		return usageView(a), nil
	case "consume":
		fs := flag.NewFlagSet("consume", flag.ContinueOnError)
		points := fs.Int("points", 1, "points to consume")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		refreshTier(ctx, a)
		if err := a.RateLimit.CheckAndRecordUsage(ctx, *points); err != nil {
			return nil, err
		}
		return usageView(a), nil
	case "tokens":
		refreshTier(ctx, a)
		return a.Tokens.Balance(ctx)
	case "token-use":
		ref, err := refFlag("token-use", args)
		if err != nil {
			return nil, err
		}
		refreshTier(ctx, a)
		ok, err := a.Tokens.UseToken(ctx, ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.ErrInsufficientBalance
		}
		return a.Tokens.State().Get(), nil
	case "token-refund":
		ref, err := refFlag("token-refund", args)
		if err != nil {
			return nil, err
		}
		refreshTier(ctx, a)
		if err := a.Tokens.RefundToken(ctx, ref); err != nil {
			return nil, err
		}
		return a.Tokens.State().Get(), nil
	case "token-buy":
		return a.Tokens.PurchaseTokenPack(ctx)
	case "member":
		if _, err := a.Entitlements.Refresh(ctx); err != nil {
			return nil, err
		}
		return a.Entitlements.State().Get(), nil
	case "subscribe":
		if _, err := a.Entitlements.PurchaseMembership(ctx); err != nil {
			return nil, err
		}
		return a.Entitlements.State().Get(), nil
	case "settings":
		return a.Settings.TutorialSettings(ctx), nil
	case "streak":
		fs := flag.NewFlagSet("streak", flag.ContinueOnError)
		touch := fs.Bool("touch", false, "record today's activity")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *touch {
			return a.Rewards.TouchStreak(ctx)
		}
		return a.Rewards.Streak(ctx)
	case "checkin":
		return a.Rewards.CheckIn(ctx)
	case "tasks":
		return a.Rewards.Tasks(ctx)
	case "task-progress":
		fs := flag.NewFlagSet("task-progress", flag.ContinueOnError)
		id := fs.String("id", "", "task id")
		n := fs.Int("n", 1, "progress amount")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return a.Rewards.Progress(ctx, *id, *n)
	case "task-claim":
		fs := flag.NewFlagSet("task-claim", flag.ContinueOnError)
		id := fs.String("id", "", "task id")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return a.Rewards.Claim(ctx, *id)
	case "news":
		return a.Rewards.News(ctx), nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func cmdMigrate(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	status := fs.Bool("status", false, "print the applied version only")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if a.Cfg.DatabaseURL == "" {
		return nil, app.ErrNoDatabase
	}
	var (
		v   int64
		err error
	)
	if *status {
		v, err = migrate.Version(ctx, a.Cfg.DatabaseURL)
	} else {
		v, err = migrate.Up(ctx, a.Cfg.DatabaseURL)
	}
	if err != nil {
		a.Log.Error("migrate", zap.Error(err))
		return nil, err
	}
	return map[string]int64{"version": v}, nil
}

func cmdUpload(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	file := fs.String("file", "", "bill file (pdf, jpg, png, heic)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *file == "" {
		return nil, fmt.Errorf("%w: need -file", errUsage)
	}
	data, err := readAll(*file)
	if err != nil {
		return nil, err
	}
	return a.API.Upload(a.OptionalSessionContext(ctx), filepath.Base(*file), data)
}

func cmdAsk(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	q := fs.String("q", "", "question")
	billCtx := fs.String("context", "", "bill analysis JSON file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	req := billapi.AskRequest{Question: *q}
	if *billCtx != "" {
		raw, err := readAll(*billCtx)
		if err != nil {
			return nil, err
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: context is not JSON", errs.ErrValidation)
		}
		req.BillContext = raw
	}
	ctx, err := a.SessionContext(ctx)
	if err != nil {
		return nil, err
	}
	return a.API.Ask(ctx, req)
}

// refreshTier updates the mirrored entitlement; failures leave the free tier.
func refreshTier(ctx context.Context, a *app.App) {
	if _, err := a.Entitlements.Refresh(ctx); err != nil {
		a.Log.Warn("entitlement refresh", zap.Error(err))
	}
}

func usageView(a *app.App) any {
	snap := a.RateLimit.State().Get()
	return struct {
		CurrentUsage   int       `json:"current_usage"`
		RemainingCalls int       `json:"remaining_calls"`
		WeeklyLimit    int       `json:"weekly_limit"`
		WeekStart      time.Time `json:"week_start"`
		Status         string    `json:"status"`
	}{snap.CurrentUsage, snap.RemainingCalls, snap.WeeklyLimit, snap.WeekStart, string(a.RateLimit.Status())}
}

func refFlag(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	ref := fs.String("ref", "", "reference id")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *ref == "" {
		return "", fmt.Errorf("%w: need -ref", errUsage)
	}
	return *ref, nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// report writes the user-facing message for err; the raw error only goes to the log.
func report(w io.Writer, log *zap.Logger, err error) {
	log.Debug("command failed", zap.Error(err))
	fmt.Fprintln(w, errs.UserMessage(err))
}

func fail(log *zap.Logger, err error) {
	report(os.Stderr, log, err)
	_ = log.Sync()
	os.Exit(1)
}
