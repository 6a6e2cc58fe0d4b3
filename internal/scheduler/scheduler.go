package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReportSchedule: ежедневно в 21:00 UTC
const DefaultReportSchedule = "0 21 * * *"

var ErrNoReportFunc = errors.New("report function is not set")

// Scheduler запускает ежедневный отчёт по расписанию cron.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	schedule cron.Schedule
	expr     string
	entry    cron.EntryID
	ctx      context.Context
	cancel   context.CancelFunc
	report   func(ctx context.Context) error
}

// New разбирает расписание в стандартном пятипольном формате.
// Пустая строка означает DefaultReportSchedule.
func New(expr string) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultReportSchedule
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", expr, err)
	}
	logger := cron.PrintfLogger(log.Default())
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		schedule: sched,
		expr:     expr,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = f
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return ErrNoReportFunc
	}
	if s.entry == 0 {
		s.entry = s.cron.Schedule(s.schedule, cron.FuncJob(s.runReport))
	}
	s.cron.Start()
	log.Printf("📅 Usage report scheduled at %q (UTC), next run %s",
		s.expr, s.schedule.Next(time.Now().UTC()).Format(time.RFC3339))
	return nil
}

func (s *Scheduler) runReport() {
	s.mu.Lock()
	report := s.report
	s.mu.Unlock()

	log.Println("🕘 Generating usage report")
	if err := report(s.ctx); err != nil {
		log.Printf("❌ Usage report failed: %v", err)
	}
}

// Stop отменяет контекст выполняющегося отчёта и ждёт его завершения.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Println("📅 Scheduler stopped")
}
