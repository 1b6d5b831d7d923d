package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"walletflow/internal/amqp"
	"walletflow/internal/backend"
	"walletflow/internal/backup"
	"walletflow/internal/cli"
	"walletflow/internal/core"
	"walletflow/internal/log"
	"walletflow/internal/state"
	"walletflow/internal/summary"
	"walletflow/internal/worker"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) (map[string]bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: %s: unexpected argument %q", errUsage, fs.Name(), fs.Arg(0))
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set, nil
}

// txFlags are the editable transaction fields shared by add and update.
type txFlags struct {
	desc, amount, typ, category, date string
}

func (f *txFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.desc, "desc", "", "description")
	fs.StringVar(&f.amount, "amount", "", "positive amount, dot or comma decimals")
	fs.StringVar(&f.typ, "type", "", "income or expense (default: the category's type)")
	fs.StringVar(&f.category, "category", "", "category id, see 'walletflow categories'")
	fs.StringVar(&f.date, "date", "", "yyyy-mm-dd or RFC 3339 timestamp (default: now)")
}

// apply copies the flags that were set onto in.
func (f *txFlags) apply(in *core.TransactionInput, set map[string]bool, categories []core.Category) error {
	if set["desc"] {
		in.Description = f.desc
	}
	if set["amount"] {
		m, err := core.ParseMoney(f.amount)
		if err != nil {
			return fmt.Errorf("amount %q: %w", f.amount, err)
		}
		in.Amount = m
	}
	if set["category"] {
		in.Category = f.category
		if c, ok := core.FindCategory(categories, f.category); ok && !set["type"] {
			in.Type = c.Type
		}
	}
	if set["type"] {
		t, err := core.ParseTransactionType(f.typ)
		if err != nil {
			return fmt.Errorf("type %q: %w", f.typ, err)
		}
		in.Type = t
	}
	if set["date"] {
		d, err := core.ParseDate(f.date)
		if err != nil {
			return fmt.Errorf("date %q: %w", f.date, err)
		}
		in.Date = d
	}
	return in.Validate(categories)
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	var tf txFlags
	tf.register(fs)
	set, err := parseFlags(fs, args)
	if err != nil {
		return err
	}

	categories := core.DefaultCategories()
	in := core.TransactionInput{Type: core.Expense}
	if err := tf.apply(&in, set, categories); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx, true)
	if err != nil {
		return err
	}
	defer closeStore()

	t, err := store.AddTransaction(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, t.ID)
	return nil
}

func (a *app) cmdUpdate(ctx context.Context, args []string) error {
	fs := newFlagSet("update")
	id := fs.String("id", "", "transaction id")
	var tf txFlags
	tf.register(fs)
	set, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: update: -id is required", errUsage)
	}

	store, closeStore, err := a.openStore(ctx, true)
	if err != nil {
		return err
	}
	defer closeStore()

	snap := store.Snapshot()
	current, ok := findTransaction(snap.Transactions, *id)
	if !ok {
		return fmt.Errorf("%w: %s", state.ErrTransactionNotFound, *id)
	}

	in := current.Input()
	if err := tf.apply(&in, set, snap.Categories); err != nil {
		return err
	}
	return store.UpdateTransaction(ctx, core.Transaction{
		ID:          current.ID,
		Description: in.Description,
		Amount:      in.Amount,
		Type:        in.Type,
		Category:    in.Category,
		Date:        in.Date,
	})
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete")
	id := fs.String("id", "", "transaction id")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: delete: -id is required", errUsage)
	}

	store, closeStore, err := a.openStore(ctx, true)
	if err != nil {
		return err
	}
	defer closeStore()

	return store.DeleteTransaction(ctx, *id)
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	typ := fs.String("type", "", "only income or expense")
	search := fs.String("search", "", "case-insensitive description filter")
	period := fs.String("period", "", "week, month or year (default: all time)")
	limit := fs.Int("n", 0, "show at most n transactions (0: all)")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}

	q := summary.Query{Search: *search}
	if *typ != "" {
		t, err := core.ParseTransactionType(*typ)
		if err != nil {
			return fmt.Errorf("%w: list: %v", errUsage, err)
		}
		q.Type = t
	}

	store, closeStore, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer closeStore()

	snap := store.Snapshot()
	txs, err := a.inPeriod(snap.Transactions, *period)
	if err != nil {
		return err
	}
	txs = summary.Filter(txs, q)
	if *limit > 0 {
		txs = summary.Recent(txs, *limit)
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tCATEGORY\tAMOUNT\tDESCRIPTION\tID")
	for _, t := range txs {
		cat := core.LookupCategory(snap.Categories, t.Category)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Date.Format("2006-01-02"), t.Type, cat.Name, signed(t), t.Description, t.ID)
	}
	return tw.Flush()
}

func (a *app) cmdBudget(ctx context.Context, args []string) error {
	fs := newFlagSet("budget")
	income := fs.String("income", "", "monthly income target")
	expense := fs.String("expense", "", "monthly spending limit")
	period := fs.String("period", "", "compare against week, month or year (default: all time)")
	set, err := parseFlags(fs, args)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx, set["income"] || set["expense"])
	if err != nil {
		return err
	}
	defer closeStore()

	b := store.Snapshot().Budget
	if set["income"] || set["expense"] {
		if set["income"] {
			if b.Income, err = core.ParseBudgetAmount(*income); err != nil {
				return fmt.Errorf("income %q: %w", *income, err)
			}
		}
		if set["expense"] {
			if b.Expense, err = core.ParseBudgetAmount(*expense); err != nil {
				return fmt.Errorf("expense %q: %w", *expense, err)
			}
		}
		if err := b.Validate(); err != nil {
			return err
		}
		if err := store.SetBudget(ctx, b); err != nil {
			return err
		}
	}

	txs, err := a.inPeriod(store.Snapshot().Transactions, *period)
	if err != nil {
		return err
	}
	a.printBudget(summary.BudgetStatus(b, summary.TotalsOf(txs)))
	return nil
}

func (a *app) cmdSummary(ctx context.Context, args []string) error {
	fs := newFlagSet("summary")
	period := fs.String("period", "", "week, month or year (default: all time)")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer closeStore()

	snap := store.Snapshot()
	txs, err := a.inPeriod(snap.Transactions, *period)
	if err != nil {
		return err
	}
	totals := summary.TotalsOf(txs)

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Income\t%s\n", totals.Income.Display())
	fmt.Fprintf(tw, "Expenses\t%s\n", totals.Expense.Display())
	fmt.Fprintf(tw, "Balance\t%s\n", totals.Balance.Display())
	fmt.Fprintf(tw, "Transactions\t%d\n", len(txs))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out)
	a.printBudget(summary.BudgetStatus(snap.Budget, totals))

	breakdown := summary.ExpenseBreakdown(txs, snap.Categories)
	if len(breakdown) == 0 {
		return nil
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Spending by category")
	tw = tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, ca := range breakdown {
		fmt.Fprintf(tw, "  %s\t%s\t%d%%\n", ca.Category.Name, ca.Amount.Display(),
			summary.Utilization(ca.Amount, totals.Expense))
	}
	return tw.Flush()
}

func (a *app) cmdCategories(args []string) error {
	fs := newFlagSet("categories")
	typ := fs.String("type", "", "only income or expense categories")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}

	categories := core.DefaultCategories()
	if *typ != "" {
		t, err := core.ParseTransactionType(*typ)
		if err != nil {
			return fmt.Errorf("%w: categories: %v", errUsage, err)
		}
		categories = core.CategoriesOfType(categories, t)
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tICON")
	for _, c := range categories {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Icon)
	}
	return tw.Flush()
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := newFlagSet("export")
	output := fs.String("o", "", "write to file instead of stdout")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}

	svc := backup.NewService(a.openBackend(ctx).Store, a.log)
	data, err := svc.Export(ctx, a.now())
	if err != nil {
		return err
	}
	if *output == "" {
		_, err = fmt.Fprintln(a.out, string(data))
		return err
	}
	if err := os.WriteFile(*output, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func (a *app) cmdImport(ctx context.Context, args []string) error {
	fs := newFlagSet("import")
	input := fs.String("f", "", "backup file, - for stdin")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("%w: import: -f is required", errUsage)
	}

	var (
		data []byte
		err  error
	)
	if *input == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*input)
	}
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	svc := backup.NewService(a.openBackend(ctx).Store, a.log)
	if err := svc.Import(ctx, data); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Data imported.")
	return nil
}

func (a *app) cmdClear(ctx context.Context, args []string) error {
	fs := newFlagSet("clear")
	yes := fs.Bool("yes", false, "confirm deleting all data")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("%w: clear: refusing to delete all data without -yes", errUsage)
	}

	svc := backup.NewService(a.openBackend(ctx).Store, a.log)
	if err := svc.ClearAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "All data cleared.")
	return nil
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}
	if !a.cfg.NotificationsEnabled() {
		return fmt.Errorf("%w: watch: AMQP_URL is not set", errUsage)
	}

	client, err := amqp.NewClient(ctx, a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, a.log)
	if err != nil {
		return err
	}
	return a.consumeUntilShutdown(client, func(_ context.Context, m *amqp.StateChangedMessage) error {
		_, werr := fmt.Fprintf(a.out, "%s  %-18s  count=%d  income=%s  expense=%s  balance=%s\n",
			m.Timestamp.Local().Format(time.DateTime), m.Action, m.TransactionCount,
			m.Income.Display(), m.Expense.Display(), m.Balance.Display())
		return werr
	})
}

// stateConsumer is the part of amqp.Client used by the long running commands.
type stateConsumer interface {
	ConsumeStateChanged(ctx context.Context, handler func(*amqp.StateChangedMessage) error) error
	Close() error
}

// consumeUntilShutdown takes an already connected client so the shutdown
// hook never observes it half built.
func (a *app) consumeUntilShutdown(client stateConsumer, handle func(context.Context, *amqp.StateChangedMessage) error) error {
	ctx, done := cli.GracefulShutdown(a.log, 5*time.Second, func(context.Context) {
		client.Close()
	})

	err := client.ConsumeStateChanged(ctx, func(m *amqp.StateChangedMessage) error {
		return handle(ctx, m)
	})
	if errors.Is(err, context.Canceled) {
		cli.WaitForShutdown(ctx, done)
		return nil
	}
	return err
}

func (a *app) cmdMirror(ctx context.Context, args []string) error {
	fs := newFlagSet("mirror")
	once := fs.Bool("once", false, "sync the replica once and exit")
	if _, err := parseFlags(fs, args); err != nil {
		return err
	}
	if !*once && !a.cfg.NotificationsEnabled() {
		return fmt.Errorf("%w: mirror: AMQP_URL is not set (use -once for a single sync)", errUsage)
	}

	bcfg, err := backend.MirrorFromAppConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("%w: mirror: %v", errUsage, err)
	}
	replica, err := backend.NewFactory(a.log).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("open replica: %w", err)
	}
	defer replica.Close()

	mirror := worker.NewMirror(a.openBackend(ctx).Store, replica.Store, a.log)
	n, err := mirror.Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Mirrored %d entries to %s\n", n, a.cfg.MirrorBackend)
	if *once {
		return nil
	}

	client, err := amqp.NewSubscriber(ctx, a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, a.cfg.MirrorQueue, a.log)
	if err != nil {
		return err
	}
	return a.consumeUntilShutdown(client, mirror.HandleStateChanged)
}

func (a *app) inPeriod(txs []core.Transaction, period string) ([]core.Transaction, error) {
	if period == "" || period == "all" {
		return txs, nil
	}
	p, err := summary.ParsePeriod(period)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	return summary.FilterSince(txs, p, a.now()), nil
}

func (a *app) printBudget(r summary.BudgetReport) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Budget income\t%s\t%s earned\t%d%%\n",
		r.Budget.Income.Display(), r.Totals.Income.Display(), r.IncomePercent)
	fmt.Fprintf(tw, "Budget expense\t%s\t%s spent\t%d%%\n",
		r.Budget.Expense.Display(), r.Totals.Expense.Display(), r.ExpensePercent)
	fmt.Fprintf(tw, "Remaining\t%s\n", r.RemainingExpense.Display())
	if err := tw.Flush(); err != nil {
		a.log.Error("Failed to write budget", log.FieldError, err)
	}
}

func findTransaction(txs []core.Transaction, id string) (core.Transaction, bool) {
	for _, t := range txs {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

func signed(t core.Transaction) string {
	if t.Type == core.Income {
		return "+" + t.Amount.Display()
	}
	return "-" + t.Amount.Display()
}
