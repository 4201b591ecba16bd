// relay/errors.go
package relay

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind классифицирует ошибки транспорта для политики повторов
type ErrorKind int

const (
	// KindOther — неклассифицированная ошибка, не повторяется
	KindOther ErrorKind = iota

	// KindTransient — временный сбой сети или платформы, повторяется
	// с экспоненциальной паузой
	KindTransient

	// KindStaleResource — топик или чат удален на платформе, локальная
	// запись устарела; лечится пересозданием, не повторами
	KindStaleResource

	// KindPermissionDenied — у бота нет прав на операцию
	KindPermissionDenied

	// KindRecipientUnavailable — пользователь заблокировал бота или удалился
	KindRecipientUnavailable

	// KindUnsupportedContent — контент нельзя скопировать
	KindUnsupportedContent

	// KindNotFound — объект операции не существует (например, сообщение
	// уже удалено); не повторяется
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindStaleResource:
		return "stale_resource"
	case KindPermissionDenied:
		return "permission_denied"
	case KindRecipientUnavailable:
		return "recipient_unavailable"
	case KindUnsupportedContent:
		return "unsupported_content"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// TransportError — типизированная ошибка операции на платформе
type TransportError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: [%s] %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError оборачивает ошибку платформы с классификацией
func NewTransportError(kind ErrorKind, op string, err error) *TransportError {
	return &TransportError{Kind: kind, Op: op, Err: err}
}

// KindOf определяет класс ошибки. Сначала проверяется типизированная
// обертка, затем текст: часть транспортов отдает только строки.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "message thread not found"),
		strings.Contains(text, "chat not found"),
		strings.Contains(text, "topic_deleted"):
		return KindStaleResource
	case strings.Contains(text, "bot was blocked"),
		strings.Contains(text, "user is deactivated"),
		strings.Contains(text, "bot was kicked"):
		return KindRecipientUnavailable
	case strings.Contains(text, "not enough rights"),
		strings.Contains(text, "forbidden"),
		strings.Contains(text, "permission"):
		return KindPermissionDenied
	case strings.Contains(text, "message to copy not found"),
		strings.Contains(text, "message to delete not found"):
		return KindNotFound
	case strings.Contains(text, "timeout"),
		strings.Contains(text, "timed out"),
		strings.Contains(text, "too many requests"),
		strings.Contains(text, "connection refused"),
		strings.Contains(text, "connection reset"),
		strings.Contains(text, "broken pipe"),
		strings.Contains(text, "unexpected eof"),
		strings.Contains(text, "bad gateway"),
		strings.Contains(text, "service unavailable"):
		return KindTransient
	}
	return KindOther
}

// IsStale сообщает, что ошибка вызвана устаревшей локальной записью
func IsStale(err error) bool {
	return KindOf(err) == KindStaleResource
}

// Notice — отказ, текст которого показывается отправителю
// (например, попытка писать в закрытое обращение)
type Notice struct {
	Text string
}

func (n *Notice) Error() string {
	return n.Text
}

// AsNotice извлекает пользовательский текст отказа, если он есть
func AsNotice(err error) (string, bool) {
	var n *Notice
	if errors.As(err, &n) {
		return n.Text, true
	}
	return "", false
}
