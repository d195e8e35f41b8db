// Package api содержит HTTP сервер агента.
//
// Структура:
//   - handler.go    — Handler с зависимостями (Service, metrics, logger)
//   - routes.go     — регистрация маршрутов (chi)
//   - middleware.go — middleware (logging, recovery)
//   - response.go   — JSON-ответы, включая формат external function {"data": [[0, "<json>"]]}
//
// Backend к агенту не подключается: эти маршруты нужны для проб готовности,
// локальной диагностики и уведомлений о завершении запросов.
package api
