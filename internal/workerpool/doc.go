// Package workerpool — пул воркеров над ограниченной очередью.
//
// Используется runner'ом операций и publisher'ом результатов.
// Канал очереди никогда не закрывается: остановка идёт через отмену контекста,
// поэтому Submit после Stop не паникует, а возвращает ErrStopped.
package workerpool
