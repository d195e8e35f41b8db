// Package storage — хранилище объектов агента.
//
// Service выполняет операции /api/v1/agent/execute/storage (команды write, read,
// delete, list_objects, generate_presigned_url, is_bucket_private) и выгружает
// результаты, превысившие лимит размера (Upload → presigned URL).
//
// Реализации Store:
//   - S3Store    — AWS S3 или S3-совместимое хранилище (aws-sdk-go-v2)
//   - LocalStore — локальный каталог
package storage
