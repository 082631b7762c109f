package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/goliatone/go-fanout/adapters/gologger"
	"github.com/goliatone/go-fanout/core"
)

type CLI struct {
	Driver   string `help:"database/sql driver (sqlite3 or postgres)." default:"sqlite3" env:"FANOUT_DB_DRIVER"`
	DSN      string `name:"dsn" help:"Database connection string." default:"file:fanout.db?_foreign_keys=on" env:"FANOUT_DB_DSN"`
	Debug    bool   `help:"Log SQL statements." env:"FANOUT_DB_DEBUG"`
	LogLevel string `help:"Log level (trace, debug, info, warn, error)." default:"info" env:"FANOUT_LOG_LEVEL"`
	LogJSON  bool   `name:"log-json" help:"Emit JSON logs." env:"FANOUT_LOG_JSON"`
	EnvFile  string `name:"env-file" help:"Optional dotenv file loaded before flags are resolved." default:".env" env:"FANOUT_ENV_FILE"`

	Concurrency int `help:"Maximum concurrent webhook deliveries per notification." default:"16" env:"FANOUT_DISPATCH_CONCURRENCY"`
	PageSize    int `help:"Match page size used while collecting URLs; 0 resolves all at once." default:"500" env:"FANOUT_DISPATCH_PAGE_SIZE"`
	CacheTTL    int `name:"cache-ttl" help:"Subscription read cache TTL in seconds; 0 disables the cache." default:"30" env:"FANOUT_CACHE_TTL_SECONDS"`

	Migrate    migrateCmd    `cmd:"" help:"Apply pending subscription schema migrations."`
	Subscribe  subscribeCmd  `cmd:"" help:"Create a webhook subscription."`
	Get        getCmd        `cmd:"" help:"Show one subscription."`
	Deactivate deactivateCmd `cmd:"" help:"Deactivate a subscription."`
	Match      matchCmd      `cmd:"" help:"List the URLs interested in a notification, one page at a time."`
	Notify     notifyCmd     `cmd:"" help:"Deliver a notification to every interested subscriber."`
}

func main() {
	loadEnvFile(os.Args[1:])

	var cli CLI
	parser := kong.Parse(&cli,
		kong.Name("fanout"),
		kong.Description("Webhook notification fan-out."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	provider := gologger.NewProvider(os.Stderr, cli.LogLevel, cli.LogJSON)
	app := &appContext{ctx: ctx, cli: &cli, provider: provider, logger: provider.GetLogger("fanout.cli")}

	err := parser.Run(app)
	if err != nil {
		app.logger.Error("command failed", "command", parser.Command(), "error", err, "text_code", textCode(err))
	}
	app.Close()
	stop()
	parser.FatalIfErrorf(err)
}

// loadEnvFile reads the dotenv file named by --env-file or FANOUT_ENV_FILE.
// A missing file is not an error.
func loadEnvFile(args []string) {
	path := os.Getenv("FANOUT_ENV_FILE")
	for i, arg := range args {
		switch {
		case arg == "--env-file" && i+1 < len(args):
			path = args[i+1]
		case len(arg) > len("--env-file=") && arg[:len("--env-file=")] == "--env-file=":
			path = arg[len("--env-file="):]
		}
	}
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("fanout: load env file: " + err.Error() + "\n")
	}
}

func textCode(err error) string {
	mapped := core.MapError(err)
	if mapped == nil {
		return ""
	}
	return mapped.TextCode
}
