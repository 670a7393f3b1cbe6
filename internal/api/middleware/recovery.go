package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"arbitrage/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Назначение:
// Перехватывает panic в HTTP handlers и предотвращает падение всего сервера.
// Логирует информацию об ошибке и stack trace для отладки.
// Возвращает клиенту корректный HTTP ответ 500 Internal Server Error.
//
// Функции:
// - Перехват panic в любом handler
// - Логирование сообщения об ошибке
// - Логирование полного stack trace
// - Возврат 500 Internal Server Error клиенту
// - Предотвращение падения сервера
// - Продолжение обработки последующих запросов
//
// Важность:
// Критически важен для стабильности сервера в production.
// Даже если в коде есть необработанная ошибка, сервер продолжит работу.
// Помогает обнаружить и исправить баги через логи.
//
// Stack trace содержит:
// - Последовательность вызовов функций до panic
// - Номера строк кода
// - Имена файлов
// - Полезно для отладки
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Error("panic recovered",
					utils.Any("error", err),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())),
				)

				http.Error(
					w,
					fmt.Sprintf("Internal Server Error: %v", err),
					http.StatusInternalServerError,
				)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
