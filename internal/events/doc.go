// Package events — приём событий от backend'а.
//
// Receiver доставляет сырые тела событий (SSE поток или очередь AMQP),
// Client декодирует их и вызывает Handler в своей горутине.
// Некорректные события логируются и отбрасываются.
package events
