package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"bollette/internal/backend"
	"bollette/internal/core"
	"bollette/internal/services"

	"github.com/shopspring/decimal"
)

const usage = `usage: bollette <command> [flags]

commands:
  create    create a schedule and generate its entries
  update    edit a schedule
  generate  materialize entries up to the horizon
  next-due  recompute and store a schedule's next due date
  pay       mark an entry as paid
  delete    delete a schedule and its entries
  list      list schedules
  entries   list a schedule's entries
  sweep     run one generation pass over all active schedules`

type app struct {
	store         backend.Store
	notifier      services.LedgerNotifier
	horizonMonths int
	concurrency   int
	now           func() time.Time
	out           io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, usage)
		return flag.ErrHelp
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return a.create(ctx, rest)
	case "update":
		return a.update(ctx, rest)
	case "generate":
		return a.generate(ctx, rest)
	case "next-due":
		return a.nextDue(ctx, rest)
	case "pay":
		return a.pay(ctx, rest)
	case "delete":
		return a.delete(ctx, rest)
	case "list":
		return a.list(ctx, rest)
	case "entries":
		return a.entries(ctx, rest)
	case "sweep":
		return a.sweep(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	default:
		fmt.Fprintln(a.out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) scheduleService() *services.ScheduleService {
	return services.NewScheduleService(a.store, a.store, a.horizonMonths)
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "schedule name")
	vendor := fs.String("vendor", "", "vendor")
	category := fs.String("category", "", "ledger category")
	amount := fs.String("amount", "", "amount per period, e.g. 49.90")
	frequency := fs.String("frequency", string(core.Monthly), "monthly, quarterly or yearly")
	start := fs.String("start", "", "start date YYYY-MM-DD")
	end := fs.String("end", "", "optional end date YYYY-MM-DD")
	day := fs.Int("day", 0, "day of month (defaults to the start day)")
	status := fs.String("status", "", "active, paused or inactive")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := services.NewSchedule{
		Name:       *name,
		Vendor:     *vendor,
		Category:   *category,
		Frequency:  core.Frequency(*frequency),
		DayOfMonth: *day,
		Status:     core.ScheduleStatus(*status),
	}
	var err error
	if in.Amount, err = parseAmount(*amount); err != nil {
		return err
	}
	if in.StartDate, err = core.ParseDate(*start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if *end != "" {
		if in.EndDate, err = core.ParseDate(*end); err != nil {
			return fmt.Errorf("end: %w", err)
		}
	}

	sched, gen, err := a.scheduleService().Create(ctx, in, a.now())
	if err != nil {
		return err
	}
	return a.print(struct {
		Schedule   scheduleView   `json:"schedule"`
		Generation generationView `json:"generation"`
	}{newScheduleView(sched), newGenerationView(gen)})
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	id := fs.String("id", "", "schedule id")
	var upd services.ScheduleUpdate
	fs.Func("name", "new name", func(s string) error { upd.Name = &s; return nil })
	fs.Func("vendor", "new vendor", func(s string) error { upd.Vendor = &s; return nil })
	fs.Func("category", "new category", func(s string) error { upd.Category = &s; return nil })
	fs.Func("amount", "new amount", func(s string) error {
		d, err := parseAmount(s)
		upd.Amount = &d
		return err
	})
	fs.Func("frequency", "new frequency", func(s string) error {
		f := core.Frequency(s)
		upd.Frequency = &f
		return nil
	})
	fs.Func("status", "new status", func(s string) error {
		st := core.ScheduleStatus(s)
		upd.Status = &st
		return nil
	})
	fs.Func("day", "new day of month", func(s string) error {
		var d int
		if _, err := fmt.Sscanf(s, "%d", &d); err != nil {
			return fmt.Errorf("day: %w", err)
		}
		upd.DayOfMonth = &d
		return nil
	})
	fs.Func("end", "new end date YYYY-MM-DD, or \"none\"", func(s string) error {
		if strings.EqualFold(s, "none") {
			upd.ClearEndDate = true
			return nil
		}
		d, err := core.ParseDate(s)
		upd.EndDate = &d
		return err
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("update: -id is required")
	}

	sched, res, err := a.scheduleService().Update(ctx, *id, upd, a.now())
	if err != nil {
		return err
	}
	return a.print(struct {
		Schedule      scheduleView   `json:"schedule"`
		AmountUpdated int64          `json:"amount_updated"`
		Deleted       int64          `json:"deleted"`
		Generation    generationView `json:"generation"`
	}{newScheduleView(sched), res.AmountUpdated, res.Deleted, newGenerationView(res.Generation)})
}

func (a *app) generate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	id := fs.String("id", "", "schedule id")
	until := fs.String("until", "", "horizon YYYY-MM-DD (defaults to the configured horizon)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sched, err := a.store.GetSchedule(ctx, *id)
	if err != nil {
		return fmt.Errorf("get schedule %s: %w", *id, err)
	}

	svc := a.scheduleService()
	now := a.now()
	horizon := svc.Horizon(sched, now)
	if *until != "" {
		if horizon, err = core.ParseDate(*until); err != nil {
			return fmt.Errorf("until: %w", err)
		}
	}

	gen, err := svc.Generator().Generate(ctx, sched, horizon, now)
	if err != nil {
		return err
	}
	return a.print(struct {
		Horizon     core.Date      `json:"horizon"`
		Generation  generationView `json:"generation"`
		NextDueDate core.Date      `json:"next_due_date"`
	}{horizon, newGenerationView(gen), sched.NextDueDate})
}

func (a *app) nextDue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("next-due", flag.ContinueOnError)
	id := fs.String("id", "", "schedule id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sched, err := a.store.GetSchedule(ctx, *id)
	if err != nil {
		return fmt.Errorf("get schedule %s: %w", *id, err)
	}
	next, err := services.NewNextDueCalculator(a.store).Recompute(ctx, sched)
	if err != nil {
		return err
	}
	if !next.Equal(sched.NextDueDate) {
		sched.NextDueDate = next
		sched.UpdatedAt = a.now().UTC()
		if err := a.store.SaveSchedule(ctx, sched); err != nil {
			return fmt.Errorf("save schedule %s: %w", sched.ID, err)
		}
	}
	return a.print(struct {
		ScheduleID  string    `json:"schedule_id"`
		NextDueDate core.Date `json:"next_due_date"`
	}{sched.ID, next})
}

func (a *app) pay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	id := fs.String("entry", "", "entry id")
	paidOn := fs.String("date", "", "paid date YYYY-MM-DD (defaults to now)")
	var details core.PaymentDetails
	fs.StringVar(&details.Method, "method", "", "payment method")
	fs.StringVar(&details.Reference, "reference", "", "payment reference")
	fs.StringVar(&details.Notes, "notes", "", "notes")
	fs.StringVar(&details.PaidBy, "by", "", "who paid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *paidOn != "" {
		d, err := core.ParseDate(*paidOn)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		details.PaidDate = d.Time
	}

	payments := services.NewPaymentService(a.store, a.store, a.notifier)
	paid, err := payments.MarkPaid(ctx, *id, details, a.now())
	if paid == nil {
		return err
	}
	if printErr := a.print(newEntryView(paid)); printErr != nil {
		return printErr
	}
	// Payment is recorded even when the schedule bookkeeping failed.
	return err
}

func (a *app) delete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := fs.String("id", "", "schedule id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.scheduleService().Delete(ctx, *id); err != nil {
		return err
	}
	return a.print(map[string]string{"deleted": *id})
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	active := fs.Bool("active", false, "only active schedules")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list := a.store.ListSchedules
	if *active {
		list = a.store.ListActiveSchedules
	}
	schedules, err := list(ctx)
	if err != nil {
		return err
	}
	views := make([]scheduleView, 0, len(schedules))
	for i := range schedules {
		views = append(views, newScheduleView(&schedules[i]))
	}
	return a.print(views)
}

func (a *app) entries(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("entries", flag.ContinueOnError)
	id := fs.String("id", "", "schedule id")
	unpaid := fs.Bool("unpaid", false, "only pending and overdue entries")
	limit := fs.Int("limit", 0, "maximum number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := services.EntryFilter{ScheduleID: *id, Order: services.OrderDueAsc, Limit: *limit}
	if *unpaid {
		filter.Statuses = core.UnpaidStatuses
	}
	entries, err := a.store.FindEntries(ctx, filter)
	if err != nil {
		return err
	}
	now := a.now()
	views := make([]entryView, 0, len(entries))
	for i := range entries {
		v := newEntryView(&entries[i])
		v.Status = entries[i].EffectiveStatus(now)
		views = append(views, v)
	}
	return a.print(views)
}

func (a *app) sweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := a.scheduleService()
	res, err := services.NewSweeper(a.store, svc.Generator(), a.horizonMonths, a.concurrency).Sweep(ctx, a.now())
	if err != nil {
		return err
	}
	return a.print(struct {
		Schedules int `json:"schedules"`
		Created   int `json:"created"`
		Skipped   int `json:"skipped"`
		Failed    int `json:"failed"`
	}{res.Schedules, res.Created, res.Skipped, res.Failed})
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
	}
	return d, nil
}
