package main

// General API documentation for swaggo. Regenerate with
// `swag init -g cmd/relayd/docs.go -o internal/httpapi/docs`.
//
// @title           relayd API
// @version         1.0
// @description     OpenAI, Ollama and LM Studio compatible relay over pooled local and remote models.
//
// @contact.name   relayd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
