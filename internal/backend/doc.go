// Package backend — исходящие вызовы агента к backend'у.
//
// Все запросы несут заголовки x-mcd-id / x-mcd-token. Тела — JSON.
// Через этот же клиент открывается SSE поток событий (OpenEventStream).
package backend
