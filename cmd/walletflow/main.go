package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"walletflow/internal/amqp"
	"walletflow/internal/backend"
	"walletflow/internal/cli"
	"walletflow/internal/config"
	"walletflow/internal/log"
	"walletflow/internal/metrics"
	"walletflow/internal/state"
)

const usageText = `usage: walletflow [-metrics] <command> [flags]

commands:
  add         record a transaction
  update      edit a transaction
  delete      remove a transaction
  list        list transactions, newest first
  budget      show or set the monthly budget
  summary     totals, budget status and spending by category
  categories  list the category catalog
  export      write a JSON backup
  import      restore a JSON backup
  clear       delete all persisted data
  watch       print state change notifications from AMQP
  mirror      keep the MIRROR_BACKEND replica in step with the data backend
`

// errUsage marks errors caused by bad command-line input.
var errUsage = errors.New("usage")

type app struct {
	cfg     *config.Config
	log     *log.Logger
	metrics *metrics.Metrics
	backend *backend.Result
	out     io.Writer
	now     func() time.Time
}

func main() {
	printMetrics := flag.Bool("metrics", false, "print store metrics to stderr on exit")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	a := &app{
		cfg:     cfg,
		log:     logger,
		metrics: metrics.New(),
		out:     os.Stdout,
		now:     time.Now,
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	err := a.run(ctx, cmd, args)

	if *printMetrics {
		if werr := a.metrics.WriteText(os.Stderr); werr != nil {
			logger.Error("Failed to write metrics", log.FieldError, werr)
		}
	}
	if a.backend != nil {
		if cerr := a.backend.Close(); cerr != nil {
			logger.Error("Failed to close backend", log.FieldError, cerr)
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		logger.Error("Command failed", "command", cmd, log.FieldError, err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		return a.cmdAdd(ctx, args)
	case "update":
		return a.cmdUpdate(ctx, args)
	case "delete":
		return a.cmdDelete(ctx, args)
	case "list":
		return a.cmdList(ctx, args)
	case "budget":
		return a.cmdBudget(ctx, args)
	case "summary":
		return a.cmdSummary(ctx, args)
	case "categories":
		return a.cmdCategories(args)
	case "export":
		return a.cmdExport(ctx, args)
	case "import":
		return a.cmdImport(ctx, args)
	case "clear":
		return a.cmdClear(ctx, args)
	case "watch":
		return a.cmdWatch(ctx, args)
	case "mirror":
		return a.cmdMirror(ctx, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) openBackend(ctx context.Context) *backend.Result {
	if a.backend == nil {
		a.backend = cli.OpenBackend(ctx, a.log, a.cfg)
	}
	return a.backend
}

// openStore hydrates a store over the configured backend. With notify set and
// AMQP configured every change is also published. The returned close function
// drains pending writes and notifications.
func (a *app) openStore(ctx context.Context, notify bool) (*state.Store, func(), error) {
	res := a.openBackend(ctx)
	store := state.New(ctx, res.Store,
		state.WithLogger(a.log),
		state.WithMetrics(a.metrics),
		state.WithHydrateTimeout(a.cfg.HydrateTimeout),
		state.WithWriteTimeout(a.cfg.WriteTimeout))

	var (
		notifier *amqp.Notifier
		client   *amqp.Client
	)
	if notify && a.cfg.NotificationsEnabled() {
		c, err := amqp.NewClient(ctx, a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, a.log)
		if err != nil {
			a.log.Warn("Failed to initialize AMQP client, continuing without notifications", log.FieldError, err)
		} else {
			client = c
			notifier = amqp.NewNotifier(client, a.log, a.cfg.NotifyBuffer)
			store.SubscribePersisted(notifier.Listener())
		}
	}

	closeFn := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout+a.cfg.HydrateTimeout)
		defer cancel()
		if err := store.Close(shutdownCtx); err != nil {
			a.log.Error("Failed to close store", log.FieldError, err)
		}
		if notifier != nil {
			if err := notifier.Close(shutdownCtx); err != nil {
				a.log.Error("Failed to drain notifications", log.FieldError, err)
			}
			client.Close()
		}
	}

	readyCtx, cancel := context.WithTimeout(ctx, a.cfg.HydrateTimeout+time.Second)
	defer cancel()
	if err := store.WaitReady(readyCtx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("wait for hydration: %w", err)
	}
	return store, closeFn, nil
}
