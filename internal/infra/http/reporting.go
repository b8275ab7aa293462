package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// FailureReporter уведомляет оператора о сбое обработчика.
type FailureReporter func(ctx context.Context, route string, err error)

var (
	installOnce   sync.Once
	panicReporter FailureReporter
)

// InstallPanicReporter регистрирует глобальный обработчик паник один раз за процесс.
// Повторные вызовы ничего не меняют и возвращают false.
func InstallPanicReporter(report FailureReporter) bool {
	installed := false
	installOnce.Do(func() {
		panicReporter = report
		installed = true
	})
	return installed
}

// StatusError задаёт HTTP-статус для ошибки обработчика.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

// BadRequest помечает ошибку как клиентскую.
func BadRequest(err error) error {
	return &StatusError{Code: http.StatusBadRequest, Err: err}
}

// HandlerFunc — обработчик, возвращающий ошибку.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// WithErrorReporting переводит ошибку обработчика в JSON-ответ.
// Серверные ошибки логируются и передаются reporter.
func WithErrorReporting(logger zerolog.Logger, route string, report FailureReporter, h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		status := http.StatusInternalServerError
		var se *StatusError
		if errors.As(err, &se) {
			status = se.Code
		}
		if status < http.StatusInternalServerError {
			WriteError(w, status, err)
			return
		}
		logger.Error().Err(err).Str("route", route).Str("request_id", RequestID(r)).Msg("http: обработчик завершился ошибкой")
		if report != nil {
			report(context.WithoutCancel(r.Context()), route, err)
		}
		WriteError(w, status, err)
	}
}

// RecoverAndReport перехватывает панику, логирует её и передаёт установленному обработчику.
func RecoverAndReport(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil || rec == http.ErrAbortHandler {
					if rec != nil {
						panic(rec)
					}
					return
				}
				err := fmt.Errorf("panic: %v", rec)
				logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", RequestID(r)).Msg("http: паника в обработчике")
				if panicReporter != nil {
					panicReporter(context.WithoutCancel(r.Context()), r.URL.Path, err)
				}
				WriteError(w, http.StatusInternalServerError, errors.New("internal error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
