// Package ack подтверждает backend'у получение операций.
//
// Оркестратор вызывает Schedule до начала выполнения операции,
// publisher результатов — Completed перед отправкой результата.
package ack
