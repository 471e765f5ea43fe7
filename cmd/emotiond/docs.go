package main

// General API documentation for swaggo. Regenerate with
// `swag init -g cmd/emotiond/docs.go`.
//
// @title           emotiond API
// @version         1.0
// @description     Realtime facial emotion detection over a websocket event channel.
//
// @contact.name   emotiond maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
//
// @securityDefinitions.apikey BearerToken
// @in header
// @name Authorization
