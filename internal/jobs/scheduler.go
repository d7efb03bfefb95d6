// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: еженочный аудит агрегатов кармы.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/karma-bot/internal/features/karma"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron         *cron.Cron
	karmaService *karma.Service
}

// NewScheduler создаёт планировщик задач в часовом поясе tz.
func NewScheduler(karmaService *karma.Service, tz string) *Scheduler {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить %s, используем UTC", tz)
		loc = time.UTC
	}

	return &Scheduler{
		cron:         cron.New(cron.WithLocation(loc)),
		karmaService: karmaService,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Еженочная сверка karma_cache с журналом в 04:00.
	// Расхождения только логируются и попадают в метрики;
	// чинит их администратор командой «пересчет».
	s.cron.AddFunc("0 4 * * *", func() {
		log.Info("[CRON] Аудит агрегатов кармы")
		found, err := s.karmaService.Audit(ctx)
		if err != nil {
			log.WithError(err).Error("[CRON] Ошибка аудита")
			return
		}
		if len(found) > 0 {
			log.WithField("count", len(found)).Error("[CRON] Аудит нашёл расхождения")
		}
	})

	s.cron.Start()
	log.Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и ждёт завершения задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
