// Package orchestrator связывает компоненты агента.
//
// Orchestrator отвечает за:
//   - Приём событий и ack каждой полученной операции
//   - Загрузку тел операций, не поместившихся в событие
//   - Маршрутизацию по пути и постановку в очередь runner'а
//   - Преобразование ошибок обработчиков в результат-ошибку (dispatch)
//   - Периодическую отправку логов и метрик
//   - Удалённое обновление конфигурации с перезапуском
//
// Каждая несинтетическая операция публикует ровно один результат.
package orchestrator
