// Package cli собирает агент из настроек и описывает команды egress-agent.
//
// # Settings
//
// Настройки читаются из окружения (MCD_BACKEND_URL, MCD_AGENT_ID,
// MCD_EVENTS_RECEIVER, CONFIG_STORE, STORAGE_TYPE и т.д.), флаги
// команды их переопределяют.
//
// # BuildAgent
//
// Выбирает реализации по настройкам:
//   - runtime-конфигурация: memory, file, postgres, redis
//   - источник событий: sse (поток backend'а) или amqp (RabbitMQ)
//   - хранилище: none, local, s3
//   - логи: буфер процесса или таблица agent_logs
//
// Ресурсы (пул postgres, соединения redis и AMQP) закрываются через Agent.Close.
//
// # Commands
//
//   - run: агент и локальный HTTP API до сигнала или запроса перезапуска
//   - health, reachability: одноразовые проверки
//   - config show|set
//   - events publish|setup-topology
//
// Данные выводятся в stdout (таблица или JSON с флагом --json),
// сообщения в stderr.
package cli
