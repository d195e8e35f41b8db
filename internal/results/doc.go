// Package results — формат результатов операций и их доставка backend'у.
//
// Структура:
//   - attributes.go — OperationAttributes и имена атрибутов на проводе (__mcd_*__)
//   - result.go     — AgentOperationResult, результаты-ошибки
//   - processor.go  — trace id, проверка размера, выгрузка больших результатов (gzip)
//   - publisher.go  — пул воркеров публикации
//
// Результат операции публикуется ровно один раз. Большой результат
// заменяется ссылкой {__mcd_result_location__, __mcd_result_compressed__}.
package results
