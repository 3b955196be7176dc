package main

// General API documentation for swaggo. Regenerate with
// `swag init -g cmd/classifyd/docs.go -o internal/httpapi/apidocs`.
//
// @title           classifyd API
// @version         1.0
// @description     HTTP API for pooled image classification engines.
//
// @contact.name   classifyd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
