// Package scheduler runs the periodic check cycle: discover new products,
// check known ones, reconcile, gate and dispatch notifications.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"bamwatch/internal/extractor"
	"bamwatch/internal/gate"
	"bamwatch/internal/metrics"
	"bamwatch/internal/model"
	"bamwatch/internal/notify"
	"bamwatch/internal/reconcile"
	"bamwatch/internal/storage"
)

// Source fetches raw pages from the monitored retailer.
type Source interface {
	FetchBullseye(ctx context.Context, pid string) ([]byte, error)
	FetchSearchPage(ctx context.Context, url string) ([]byte, error)
}

// Config holds the per-source worker settings.
type Config struct {
	SearchURLs        []string
	Keywords          []string
	ExcludeKeywords   []string
	MaxChecksPerCycle int
	RetentionDays     int
}

// Worker periodically polls one monitored source. It owns the in-memory
// product mapping between checkpoints; observations within a cycle are
// processed strictly sequentially.
type Worker struct {
	store    storage.Storage
	source   Source
	gate     *gate.Gate
	notifier notify.Notifier
	metrics  metrics.Collector
	images   reconcile.ImageFetcher
	cfg      Config
	log      *slog.Logger
	tick     time.Duration

	// products caches the loaded mapping so a failed save is retried at
	// the next checkpoint instead of being abandoned.
	products map[string]*model.Product
}

// New creates a Worker.
func New(store storage.Storage, source Source, g *gate.Gate, notifier notify.Notifier, cfg Config, log *slog.Logger) *Worker {
	if cfg.MaxChecksPerCycle == 0 {
		cfg.MaxChecksPerCycle = 10
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = gate.DefaultRetentionDays
	}
	return &Worker{
		store:    store,
		source:   source,
		gate:     g,
		notifier: notifier,
		metrics:  metrics.Nop{},
		cfg:      cfg,
		log:      log,
		tick:     5 * time.Minute,
	}
}

// SetMetrics attaches a metrics collector.
func (w *Worker) SetMetrics(c metrics.Collector) {
	w.metrics = c
}

// SetImageFetcher attaches the optional image mirroring collaborator.
func (w *Worker) SetImageFetcher(f reconcile.ImageFetcher) {
	w.images = f
}

// SetTickInterval overrides the default 5-minute check interval.
func (w *Worker) SetTickInterval(d time.Duration) {
	w.tick = d
}

// Run starts the worker loop, blocking until ctx is cancelled. The worker
// stops between cycles; an in-flight cycle finishes its checkpoint first.
func (w *Worker) Run(ctx context.Context) {
	w.runCycle(ctx)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// RunOnce executes a single check cycle (used by the on-demand check path).
func (w *Worker) RunOnce(ctx context.Context) {
	w.runCycle(ctx)
}

func (w *Worker) runCycle(ctx context.Context) {
	log := w.log.With("cycle", uuid.NewString()[:8])
	log.Debug("starting check cycle")

	if w.products == nil {
		products, err := w.store.LoadProducts(ctx)
		if err != nil {
			log.Warn("load products, starting from empty state", "error", err)
			products = make(map[string]*model.Product)
		}
		w.products = products
	}

	engine := reconcile.New(w.products, log)
	engine.SetImageFetcher(w.images)
	engine.SetEventHook(func(ev model.ChangeEvent) {
		w.metrics.RecordEvent(string(ev.Type))
	})

	for _, pid := range w.discover(ctx, log) {
		if ctx.Err() != nil {
			return
		}
		w.checkProduct(ctx, log, engine, pid, model.ClassNewItem)
	}

	for _, pid := range w.dueExisting() {
		if ctx.Err() != nil {
			break
		}
		w.checkProduct(ctx, log, engine, pid, model.ClassStockChange)
	}

	// Checkpoint. A failed save keeps the mapping in memory for the next
	// attempt.
	if err := w.store.SaveProducts(ctx, engine.Products()); err != nil {
		log.Error("save products", "error", err)
	}
	if pruned := w.gate.PruneExpired(ctx, w.cfg.RetentionDays); pruned > 0 {
		log.Info("pruned notification ledger", "removed", pruned)
	}
	w.metrics.SetProductsTracked(len(engine.Products()))
	w.metrics.RecordCycle()
}

// discover scans the configured search pages for PIDs not yet tracked.
func (w *Worker) discover(ctx context.Context, log *slog.Logger) []string {
	var newPIDs []string
	seen := make(map[string]bool)
	for _, pageURL := range w.cfg.SearchURLs {
		if ctx.Err() != nil {
			break
		}
		body, err := w.source.FetchSearchPage(ctx, pageURL)
		if err != nil {
			log.Error("fetch search page", "url", pageURL, "error", err)
			w.metrics.RecordFetchError()
			continue
		}
		pids, err := extractor.ExtractPIDs(body)
		if err != nil {
			log.Error("parse search page", "url", pageURL, "error", err)
			continue
		}
		for _, pid := range pids {
			if seen[pid] {
				continue
			}
			if _, known := w.products[pid]; known {
				continue
			}
			seen[pid] = true
			newPIDs = append(newPIDs, pid)
		}
	}
	if len(newPIDs) > 0 {
		log.Info("discovered new products", "count", len(newPIDs))
	}
	return newPIDs
}

// dueExisting returns up to MaxChecksPerCycle tracked PIDs, oldest
// last-check first.
func (w *Worker) dueExisting() []string {
	pids := make([]string, 0, len(w.products))
	for pid := range w.products {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool {
		a, b := w.products[pids[i]], w.products[pids[j]]
		if a.LastCheck.Equal(b.LastCheck) {
			return pids[i] < pids[j]
		}
		return a.LastCheck.Before(b.LastCheck)
	})
	if len(pids) > w.cfg.MaxChecksPerCycle {
		pids = pids[:w.cfg.MaxChecksPerCycle]
	}
	return pids
}

func (w *Worker) checkProduct(ctx context.Context, log *slog.Logger, engine *reconcile.Engine, pid string, class model.NotificationClass) {
	outcome := w.checkPID(ctx, pid)
	switch outcome.Status {
	case model.CheckFetchFailed:
		log.Error("check stock", "pid", pid, "error", outcome.Err)
		w.metrics.RecordFetchError()
		return
	case model.CheckNoData:
		log.Debug("no product data", "pid", pid)
		return
	}

	events, err := engine.Reconcile(ctx, outcome.Observation)
	if err != nil {
		log.Error("reconcile", "pid", pid, "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	product := engine.Products()[pid]
	if !extractor.MatchKeywords(product.Title, w.cfg.Keywords, w.cfg.ExcludeKeywords) {
		log.Debug("title filtered, tracking silently", "pid", pid, "title", product.Title)
		return
	}
	if !w.gate.ShouldNotify(ctx, pid, class) {
		log.Debug("notification suppressed", "pid", pid, "class", string(class))
		w.metrics.RecordNotificationSuppressed()
		return
	}

	var alert notify.Alert
	if class == model.ClassNewItem {
		alert = notify.FormatNewItem(product)
	} else {
		alert = notify.FormatStockChange(product, events)
	}
	w.dispatch(ctx, log, pid, alert)
}

// checkPID fetches and extracts one observation, classifying the outcome
// instead of surfacing benign "nothing to do" results as errors.
func (w *Worker) checkPID(ctx context.Context, pid string) model.CheckOutcome {
	body, err := w.source.FetchBullseye(ctx, pid)
	if err != nil {
		return model.CheckOutcome{Status: model.CheckFetchFailed, Err: err}
	}
	obs, err := extractor.ParseBullseye(body, pid)
	if errors.Is(err, extractor.ErrNoData) {
		return model.CheckOutcome{Status: model.CheckNoData}
	}
	if err != nil {
		return model.CheckOutcome{Status: model.CheckFetchFailed, Err: err}
	}
	return model.CheckOutcome{Status: model.CheckObservation, Observation: obs}
}

// dispatch sends the alert and records the attempt in the ledger. The
// ledger entry is written whether or not the send succeeded; a transient
// webhook failure suppresses that day's alert rather than retrying.
func (w *Worker) dispatch(ctx context.Context, log *slog.Logger, pid string, alert notify.Alert) {
	if err := w.notifier.Send(ctx, alert); err != nil {
		log.Error("send notification", "pid", pid, "error", err)
	} else {
		log.Info("sent notification", "pid", pid, "title", alert.Title)
		w.metrics.RecordNotificationSent()
	}
	w.gate.RecordNotified(ctx, pid)
}
