// relay/scheduler.go
package relay

import (
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// GocronScheduler реализует Scheduler поверх gocron: каждая задача —
// одноразовая, помеченная тегом-именем, по которому проверяется наличие
type GocronScheduler struct {
	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewGocronScheduler создает и запускает планировщик
func NewGocronScheduler() *GocronScheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	s.StartAsync()
	log.Println("✅ Планировщик отложенных задач запущен")
	return &GocronScheduler{scheduler: s}
}

// ScheduleOnce взводит одноразовую задачу с данным именем. Идемпотентен
// по имени: если задача уже взведена, вызов ничего не меняет. Проверка и
// взведение выполняются под одной блокировкой, чтобы одновременные части
// одной серии не взвели задачу дважды.
// WaitForSchedule откладывает первый (и единственный) запуск на интервал:
// без него задача с интервалом-длительностью стартует сразу и окно
// накопления схлопывается.
// Тег удаляется после выполнения, чтобы имя можно было переиспользовать.
func (g *GocronScheduler) ScheduleOnce(name string, delay time.Duration, task func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if jobs, err := g.scheduler.FindJobsByTag(name); err == nil && len(jobs) > 0 {
		return nil
	}

	_, err := g.scheduler.Every(delay).WaitForSchedule().LimitRunsTo(1).Tag(name).Do(func() {
		defer func() {
			if err := g.scheduler.RemoveByTag(name); err != nil {
				log.Printf("⚠️ Ошибка удаления задачи %s: %v", name, err)
			}
		}()
		task()
	})
	return err
}

// Scheduled сообщает, взведена ли задача с данным именем
func (g *GocronScheduler) Scheduled(name string) bool {
	jobs, err := g.scheduler.FindJobsByTag(name)
	if err != nil {
		return false
	}
	return len(jobs) > 0
}

// Cancel снимает задачу, не выполняя ее
func (g *GocronScheduler) Cancel(name string) error {
	return g.scheduler.RemoveByTag(name)
}

// Available сообщает, работает ли планировщик
func (g *GocronScheduler) Available() bool {
	return g.scheduler != nil && g.scheduler.IsRunning()
}

// Stop останавливает планировщик при завершении работы
func (g *GocronScheduler) Stop() {
	g.scheduler.Stop()
}
