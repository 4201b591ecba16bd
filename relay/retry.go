// relay/retry.go
package relay

import "log"

// invoke выполняет операцию транспорта с повторами.
// Повторяются только временные сбои: пауза начинается с InitialWait и
// удваивается перед каждой следующей попыткой, не превышая MaxWait.
// Ошибки устаревших записей и все остальные классы возвращаются сразу —
// их лечат на уровне вызывающей операции, а не повторами.
func (m *Manager) invoke(op string, fn func() error) error {
	wait := m.Retry.InitialWait
	retries := 0

	for {
		err := fn()
		if err == nil {
			return nil
		}

		switch KindOf(err) {
		case KindTransient:
			retries++
			if retries > m.Retry.MaxRetries {
				log.Printf("❌ %s: превышен лимит повторов (%d): %v", op, m.Retry.MaxRetries, err)
				return err
			}
			if wait > m.Retry.MaxWait {
				wait = m.Retry.MaxWait
			}
			log.Printf("⚠️ %s: временный сбой, повтор %d/%d через %v: %v", op, retries, m.Retry.MaxRetries, wait, err)
			m.sleep(wait)
			wait *= 2
		default:
			return err
		}
	}
}
