// relay/retry_test.go
package relay

import (
	"errors"
	"testing"
	"time"
)

func transientErr(text string) error {
	return NewTransportError(KindTransient, "test", errors.New(text))
}

func TestInvokeRetriesTransientAndSucceeds(t *testing.T) {
	m, _, _, _ := newTestManager()

	calls := 0
	err := m.invoke("op", func() error {
		calls++
		if calls < 3 {
			return transientErr("timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ожидался успех после повторов, получено: %v", err)
	}
	if calls != 3 {
		t.Fatalf("ожидалось 3 вызова, было %d", calls)
	}
}

func TestInvokeBoundedAttempts(t *testing.T) {
	m, _, _, _ := newTestManager()
	m.Retry.MaxRetries = 3

	calls := 0
	err := m.invoke("op", func() error {
		calls++
		return transientErr("connection reset by peer")
	})
	if err == nil {
		t.Fatal("ожидалась ошибка после исчерпания повторов")
	}
	// Первая попытка плюс MaxRetries повторов
	if calls != 4 {
		t.Fatalf("ожидалось 4 вызова, было %d", calls)
	}
}

func TestInvokeWaitsNonDecreasingAndCapped(t *testing.T) {
	m, _, _, _ := newTestManager()
	m.Retry.MaxRetries = 5
	m.Retry.InitialWait = 1 * time.Second
	m.Retry.MaxWait = 4 * time.Second

	var waits []time.Duration
	m.sleep = func(d time.Duration) { waits = append(waits, d) }

	_ = m.invoke("op", func() error {
		return transientErr("timeout")
	})

	if len(waits) != 5 {
		t.Fatalf("ожидалось 5 пауз, было %d", len(waits))
	}
	for i, d := range waits {
		if d > m.Retry.MaxWait {
			t.Errorf("пауза %d превышает потолок: %v", i, d)
		}
		if i > 0 && d < waits[i-1] {
			t.Errorf("пауза %d меньше предыдущей: %v < %v", i, d, waits[i-1])
		}
	}
	// 1s, 2s, 4s, затем потолок
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("пауза %d: ожидалось %v, получено %v", i, want[i], waits[i])
		}
	}
}

func TestInvokeStaleNotRetried(t *testing.T) {
	m, _, _, _ := newTestManager()

	calls := 0
	err := m.invoke("op", func() error {
		calls++
		return NewTransportError(KindStaleResource, "test", errors.New("message thread not found"))
	})
	if calls != 1 {
		t.Fatalf("устаревший ресурс не должен повторяться, вызовов: %d", calls)
	}
	if !IsStale(err) {
		t.Fatalf("ожидалась ошибка устаревшего ресурса, получено: %v", err)
	}
}

func TestInvokeOtherErrorNotRetried(t *testing.T) {
	m, _, _, _ := newTestManager()

	calls := 0
	err := m.invoke("op", func() error {
		calls++
		return errors.New("bad request: text is empty")
	})
	if calls != 1 {
		t.Fatalf("неклассифицированная ошибка не должна повторяться, вызовов: %d", calls)
	}
	if err == nil {
		t.Fatal("ошибка должна вернуться вызывающему")
	}
}

func TestKindOfTextInference(t *testing.T) {
	cases := []struct {
		text string
		want ErrorKind
	}{
		{"Bad Request: message thread not found", KindStaleResource},
		{"Bad Request: chat not found", KindStaleResource},
		{"Forbidden: bot was blocked by the user", KindRecipientUnavailable},
		{"Forbidden: user is deactivated", KindRecipientUnavailable},
		{"Bad Request: not enough rights to manage topics", KindPermissionDenied},
		{"Too Many Requests: retry after 5", KindTransient},
		{"read tcp: connection reset by peer", KindTransient},
		{"Bad Request: message to copy not found", KindNotFound},
		{"Bad Request: text is empty", KindOther},
	}
	for _, c := range cases {
		if got := KindOf(errors.New(c.text)); got != c.want {
			t.Errorf("KindOf(%q) = %v, ожидалось %v", c.text, got, c.want)
		}
	}
}
