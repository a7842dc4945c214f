/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var logger = newLogger(os.Stderr)

func newLogger(out io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: logDate}

	return zerolog.New(output).With().Timestamp().Logger()
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	logger.Info().Msgf(format, args...)
}

// errorf is never silenced by --verbose.
func errorf(format string, args ...any) {
	logger.Error().Msgf(format, args...)
}

// logFunc binds logf to c, for packages that take a plain Logf.
func (c *Config) logFunc() func(string, ...any) {
	return func(format string, args ...any) {
		logf(c, format, args...)
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", html.EscapeString(body)))

	return htmlBody.String()
}
