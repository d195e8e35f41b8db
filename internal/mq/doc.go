// Package mq — транспорт событий агента поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с брокером (reconnect с экспоненциальной задержкой)
//   - topology.go   — exchange, очередь событий агента и её DLQ
//   - consumer.go   — потребление событий с переподпиской после reconnect
//   - publisher.go  — публикация событий (CLI)
//
// Топология:
//
//	egress.agent (direct)
//	└── agent.events [routing: events]  → DLQ: dlq.agent.events
//	egress.dlq (direct)
//	└── dlq.agent.events [routing: agent.events]
package mq
