/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package remote

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/Seednode/drawcast/session"
)

const (
	Service = "_drawcast._tcp"
	Domain  = "local."
)

// Announce advertises a display over mDNS until the returned function is
// called. name is published in the TXT record for controllers to show.
func Announce(instance, name string, port int) (func(), error) {
	server, err := zeroconf.Register(instance, Service, Domain, port, []string{"name=" + name}, nil)
	if err != nil {
		return nil, err
	}

	return server.Shutdown, nil
}

// Browse reports every display found until ctx is done. found is called
// from the resolver's goroutine.
func Browse(ctx context.Context, found func(session.Device)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}

	entries := make(chan *zeroconf.ServiceEntry)

	go func(results <-chan *zeroconf.ServiceEntry) {
		for entry := range results {
			if d, ok := deviceFromEntry(entry); ok {
				found(d)
			}
		}
	}(entries)

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return err
	}

	<-ctx.Done()

	return nil
}

func deviceFromEntry(entry *zeroconf.ServiceEntry) (session.Device, bool) {
	var host string

	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return session.Device{}, false
	}

	d := session.Device{
		ID:   entry.Instance,
		Name: entry.Instance,
		Addr: net.JoinHostPort(host, strconv.Itoa(entry.Port)),
	}

	for _, txt := range entry.Text {
		if name, ok := strings.CutPrefix(txt, "name="); ok && name != "" {
			d.Name = name
		}
	}

	return d, true
}
