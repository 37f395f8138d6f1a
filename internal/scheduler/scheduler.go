package scheduler

import (
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler периодически удаляет просроченные диалоги
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	sweepFunc func() int
}

// New создает новый планировщик с расписанием в формате cron ("@every 1m", "*/5 * * * *")
func New(spec string) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		spec: spec,
	}
}

// SetSweepFunction устанавливает функцию очистки; она возвращает число удалённых диалогов
func (s *Scheduler) SetSweepFunction(f func() int) {
	s.sweepFunc = f
}

// Start запускает планировщик
func (s *Scheduler) Start() error {
	if s.sweepFunc == nil {
		return errors.New("sweep function not set")
	}
	if _, err := s.cron.AddFunc(s.spec, s.runSweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("📅 Scheduler started - expired sessions are swept on %q", s.spec)
	return nil
}

func (s *Scheduler) runSweep() {
	if n := s.sweepFunc(); n > 0 {
		log.Printf("🧹 Swept %d expired session(s)", n)
	}
}

// Stop останавливает планировщик и ждёт завершения запущенной очистки
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	log.Println("📅 Scheduler stopped")
}

// IsRunning проверяет, запущен ли планировщик
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
