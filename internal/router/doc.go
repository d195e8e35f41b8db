// Package router сопоставляет путь операции с обработчиком.
//
// Таблица фиксирована при старте и только читается. Маршруты проверяются
// в порядке объявления, побеждает первое совпадение. Единственный
// префиксный маршрут — /api/v1/agent/execute/storage.
package router
