// Package runner выполняет операции агента в пуле воркеров.
//
// Число воркеров задаётся ops_runner_thread_count. Runner не знает
// о маршрутах: ExecuteFunc, переданная оркестратором, разрешает путь
// и публикует результат.
package runner
