// Package config — runtime-конфигурация агента.
//
// Manager хранит значения строками и отдаёт их через типизированные геттеры.
// Изменения (операция upgrade, CLI `config set`) сохраняются через Persistence:
//   - MemoryPersistence — в памяти процесса
//   - FilePersistence   — JSON файл
//   - repo.ConfigRepo, repo.RedisConfigStore — Postgres и Redis
//
// Изменение ops_runner_thread_count и publisher_thread_count во время работы
// не меняет размер уже запущенных пулов.
package config
