// Package timer — периодический запуск задач агента.
//
// Агент держит два таймера: отправку ack'ов (ack_interval_seconds)
// и выгрузку логов (push_logs_interval_seconds).
package timer
