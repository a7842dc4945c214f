/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/drawcast/roster"
)

var palette = [...]string{"#ffffff", "#1d1d1f", "#d93025", "#1a73e8"}

// cspHome relaxes the default policy enough for the inline styles of the
// display page.
func cspHome(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
}

func writeGrid(b *strings.Builder, rows [][]int) {
	b.WriteString(`<table class="grid">`)
	for _, row := range rows {
		b.WriteString(`<tr>`)
		for _, c := range row {
			fmt.Fprintf(b, `<td class="c%d"></td>`, c)
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</table>`)
}

func writeRoster(b *strings.Builder, s hubState) {
	b.WriteString(`<ul class="roster">`)
	for _, p := range s.Roster.Participants {
		name := p.Name
		if name == "" {
			name = "(joining)"
		}

		marker := ""
		if p.ID == s.Artist && p.State == roster.Playing {
			marker = " &#9998;"
		}

		fmt.Fprintf(b, `<li>%s <small>%s</small>%s</li>`, html.EscapeString(name), p.State, marker)
	}
	b.WriteString(`</ul>`)
}

func renderHome(cfg *Config, hubs []*Hub) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	b.WriteString(`<meta charset="utf-8"><meta http-equiv="refresh" content="2">`)
	b.WriteString(getFavicon())
	b.WriteString(`<style>`)
	b.WriteString(`body{font-family:sans-serif;margin:2em;background:#f4f4f4;color:#1d1d1f;}`)
	b.WriteString(`.session{display:flex;gap:2em;align-items:flex-start;margin-bottom:2em;}`)
	b.WriteString(`.grid{border-collapse:collapse;border:2px solid #1d1d1f;}`)
	b.WriteString(`.grid td{width:1.2em;height:1.2em;padding:0;}`)
	for i, colour := range palette {
		fmt.Fprintf(&b, `.c%d{background:%s;}`, i, colour)
	}
	b.WriteString(`</style>`)
	b.WriteString(`<title>drawcast</title></head><body>`)

	if len(hubs) == 0 {
		fmt.Fprintf(&b, `<h1>Waiting for players</h1><p>Scan to connect, or run <code>drawcast play</code>.</p><img src="%s/qr" alt="QR code">`,
			html.EscapeString(cfg.prefix))
	}

	for _, hub := range hubs {
		s := hub.state()

		lobby := "match in progress"
		if s.Roster.LobbyOpen {
			lobby = "lobby open"
		}

		fmt.Fprintf(&b, `<h2>Turn %d <small>(%s)</small></h2><div class="session">`, s.Turn, lobby)
		writeGrid(&b, s.Grid)
		writeRoster(&b, s)
		b.WriteString(`</div>`)
	}

	b.WriteString(`</body></html>`)

	return b.String()
}

func serveHomePage(cfg *Config, am *AppManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		page := renderHome(cfg, am.list())

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)
		cspHome(cfg, w)

		written, err := w.Write([]byte(page))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		// A display is meant for the local network only.
		data := "User-agent: *\nDisallow: /\n"

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
