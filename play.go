/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/Seednode/drawcast/loop"
	"github.com/Seednode/drawcast/protocol"
	"github.com/Seednode/drawcast/remote"
	"github.com/Seednode/drawcast/roster"
	"github.com/Seednode/drawcast/session"
	"github.com/Seednode/drawcast/turn"
)

var errQuit = errors.New("quit")

var cellGlyphs = [...]byte{'.', '#', 'x', 'o'}

const playHelp = `commands:
  devices              list displays found on the network
  select N|ADDR        connect to a listed display or to host:port
  deselect             forget the selected display
  disconnect [stop]    hang up, optionally stopping the game on the display
  retry                repeat the last failed connection
  join NAME            enter the lobby as NAME
  start                start a match with everyone who has joined
  leave                leave the lobby or the current match
  paint X Y C          colour a cell (artist only, C is 0-3)
  clear                wipe the canvas (artist only)
  done                 finish drawing and pass the turn on
  guess N              pick word N from the list
  grid                 show the canvas
  status               show the session, lobby and match
  quit                 leave and exit`

// controller wires the pairing and turn state machines to a line-oriented
// terminal. Every method runs on the loop.
type controller struct {
	cfg     *Config
	out     io.Writer
	manager *session.Manager
	coord   *turn.Coordinator
	view    *roster.View

	devices   []session.Device
	retry     func()
	lastState session.State
	lastMatch turn.Match
}

func newController(cfg *Config, words []string, l *loop.Loop, rng *rand.Rand, out io.Writer) *controller {
	c := &controller{
		cfg:  cfg,
		out:  out,
		view: roster.NewView(),
	}

	scheme := "ws"
	if cfg.secure {
		scheme = "wss"
	}

	connector := remote.NewConnector(remote.Options{
		Scheme:  scheme,
		Retries: cfg.retries,
		Logf:    cfg.logFunc(),
	})

	c.manager = session.NewManager(connector, l, session.Options{
		AppID:    cfg.appID,
		Timeout:  cfg.connectTimeout,
		Reporter: c,
		Logf:     cfg.logFunc(),
	})

	c.coord = turn.New(c.manager, c.view, l, turn.Options{
		WordCount:    cfg.wordCount,
		GuessTicks:   cfg.guessTicks,
		TickInterval: cfg.tickInterval,
		GridSize:     cfg.gridSize,
		Words:        words,
		Rand:         rng,
		Notify:       c.onTurnEvent,
		Logf:         cfg.logFunc(),
	})

	c.manager.Subscribe(c.coord.HandleSession)
	c.manager.Subscribe(c.onSessionEvent)
	c.manager.SetGameHandler(func(from string, msg protocol.Message) {
		if err := c.coord.HandleMessage(from, msg); err != nil {
			logf(cfg, "TURN: %v", err)
		}
	})

	return c
}

func (c *controller) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// ReportError is the single place connection and request failures reach
// the user.
func (c *controller) ReportError(err error, retry func()) {
	c.retry = retry

	if retry != nil {
		c.printf("error: %v (type 'retry' to try again)", err)

		return
	}

	c.printf("error: %v", err)
}

func (c *controller) found(d session.Device) {
	if slices.ContainsFunc(c.devices, func(known session.Device) bool { return known.ID == d.ID }) {
		return
	}

	c.devices = append(c.devices, d)
	c.printf("found display %d: %s", len(c.devices), d)
}

func (c *controller) onSessionEvent(ev session.Event) {
	if ev.State != c.lastState {
		c.lastState = ev.State

		switch {
		case ev.Device != nil:
			c.printf("session: %s (%s)", ev.State, ev.Device)
		default:
			c.printf("session: %s", ev.State)
		}
	}

	if ev.State == session.Ready {
		c.printRoster(ev.Roster)
	}
}

func (c *controller) printRoster(s roster.Snapshot) {
	lobby := "closed"
	if s.LobbyOpen {
		lobby = "open"
	}

	var names []string
	for _, p := range s.Participants {
		name := c.view.Name(p.ID)
		if p.ID == c.manager.PlayerID() {
			name += " (you)"
		}
		names = append(names, fmt.Sprintf("%s [%s]", name, p.State))
	}

	c.printf("lobby %s: %s", lobby, strings.Join(names, ", "))
}

func (c *controller) onTurnEvent(ev turn.Event) {
	switch ev.Kind {
	case turn.MatchChanged:
		c.matchChanged(ev.Match)
	case turn.GuessResult:
		f := ev.Feedback
		switch {
		case f.TimedOut:
			c.printf("time's up! it was %q", f.CorrectWord)
		case f.Correct:
			c.printf("correct, it was %q", f.CorrectWord)
		default:
			c.printf("%q is wrong, it was %q", f.Word, f.CorrectWord)
		}
	case turn.PeerGuessed:
		g := ev.PeerGuess
		name := c.view.Name(g.Participant)
		switch {
		case g.TimedOut:
			c.printf("%s ran out of time", name)
		case !g.Known:
			c.printf("%s guessed", name)
		case g.Correct:
			c.printf("%s guessed %q correctly", name, g.Word)
		default:
			c.printf("%s guessed %q", name, g.Word)
		}
	}
}

func (c *controller) matchChanged(m turn.Match) {
	prev := c.lastMatch
	c.lastMatch = m

	if m.Phase != prev.Phase || m.Turn != prev.Turn {
		switch m.Phase {
		case turn.ArtistTurn:
			c.printf("turn %d: you are drawing %q, type 'done' when finished", m.Turn, m.Words[m.Correct])
		case turn.GuesserTurn:
			c.printf("turn %d: %s is drawing", m.Turn, c.view.Name(m.Artist))
		case turn.MatchEnded:
			c.printf("match over after %d turns", m.Turn+1)
		}
	}

	if m.Phase == turn.GuesserTurn && len(m.Words) > 0 && len(prev.Words) == 0 {
		c.printWords(m.Words)
	}

	if m.Phase == turn.GuesserTurn && !m.LocalGuessed && m.Remaining != prev.Remaining &&
		m.Remaining > 0 && (m.Remaining%10 == 0 || m.Remaining <= 5) {
		c.printf("%d...", m.Remaining)
	}
}

func (c *controller) printWords(words []string) {
	var b strings.Builder
	for i, w := range words {
		fmt.Fprintf(&b, "  %d) %s", i+1, w)
	}

	c.printf("guess with 'guess N':%s", b.String())
}

func (c *controller) printGrid() {
	rows := c.coord.Grid()

	var b strings.Builder
	b.WriteString("   ")
	for x := range len(rows) {
		b.WriteByte(byte('0' + x%10))
	}
	b.WriteByte('\n')

	for y, row := range rows {
		fmt.Fprintf(&b, "%2d ", y)
		for _, cell := range row {
			if int(cell) < len(cellGlyphs) {
				b.WriteByte(cellGlyphs[cell])
			} else {
				b.WriteByte('?')
			}
		}
		b.WriteByte('\n')
	}

	fmt.Fprint(c.out, b.String())
}

func (c *controller) printStatus() {
	device := "none"
	if d := c.manager.SelectedDevice(); d != nil {
		device = d.String()
	}

	c.printf("session: %s, display: %s", c.manager.State(), device)

	if err := c.manager.LastError(); err != nil {
		c.printf("last error: %v", err)
	}

	if c.manager.IsReady() {
		c.printRoster(c.manager.CurrentRoster())
	}

	m := c.coord.Match()
	c.printf("match: %s, turn %d", m.Phase, m.Turn)

	if m.Waiting() {
		c.printf("waiting for the artist's words...")
	}
}

func (c *controller) done(what string) func(error) {
	return func(err error) {
		if err != nil && !errors.Is(err, session.ErrRemoteRejected) {
			c.printf("%s failed: %v", what, err)
		}
	}
}

func (c *controller) selectTarget(arg string) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(c.devices) {
			c.printf("no display %d, see 'devices'", n)

			return
		}

		d := c.devices[n-1]
		c.manager.SelectDevice(&d)

		return
	}

	c.manager.SelectDevice(&session.Device{ID: arg, Name: arg, Addr: arg})
}

func atoi(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d numbers", n)
	}

	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		out[i] = v
	}

	return out, nil
}

// exec runs one command line and returns errQuit when the user is done.
func (c *controller) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error

	switch cmd {
	case "help", "?":
		c.printf("%s", playHelp)

	case "devices":
		if len(c.devices) == 0 {
			c.printf("no displays found yet")
		}
		for i, d := range c.devices {
			c.printf("%d: %s", i+1, d)
		}

	case "select":
		if len(args) != 1 {
			return errors.New("usage: select N|ADDR")
		}
		c.selectTarget(args[0])

	case "deselect":
		c.manager.SelectDevice(nil)

	case "disconnect":
		c.manager.Disconnect(len(args) > 0 && args[0] == "stop")

	case "retry":
		if c.retry == nil {
			return errors.New("nothing to retry")
		}
		retry := c.retry
		c.retry = nil
		retry()

	case "join":
		name := strings.Join(args, " ")
		if name == "" {
			name = c.cfg.name
		}
		if name == "" {
			return errors.New("usage: join NAME")
		}
		err = c.manager.RequestPlayerState(roster.Ready, name, c.done("join"))

	case "start":
		err = c.manager.RequestPlayerState(roster.Playing, "", c.done("start"))

	case "leave":
		err = c.manager.RequestPlayerState(roster.Available, "", c.done("leave"))

	case "paint":
		var v []int
		if v, err = atoi(args, 3); err != nil {
			return fmt.Errorf("usage: paint X Y C: %w", err)
		}
		if v[2] < 0 || v[2] > 255 {
			return fmt.Errorf("colour %d out of range", v[2])
		}
		err = c.coord.Paint(v[0], v[1], uint8(v[2]))

	case "clear":
		err = c.coord.Clear()

	case "done":
		err = c.coord.EndTurn()

	case "guess":
		var v []int
		if v, err = atoi(args, 1); err != nil {
			return fmt.Errorf("usage: guess N: %w", err)
		}
		err = c.coord.SubmitGuess(v[0] - 1)

	case "grid":
		c.printGrid()

	case "status":
		c.printStatus()

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}

	return err
}

// Play runs a controller until ctx is done, input ends or the user quits.
func Play(ctx context.Context, cfg *Config, words []string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := loop.New(256)
	go func() {
		_ = l.Run(ctx)
	}()

	c := newController(cfg, words, l, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), out)

	l.Call(func() {
		c.printf("drawcast v%s, type 'help' for commands", releaseVersion)

		if cfg.device != "" {
			c.selectTarget(cfg.device)
		}
	})

	if cfg.discover > 0 {
		browseCtx, stopBrowsing := context.WithTimeout(ctx, cfg.discover)
		defer stopBrowsing()

		go func() {
			err := remote.Browse(browseCtx, func(d session.Device) {
				l.Post(func() { c.found(d) })
			})
			if err != nil {
				logf(cfg, "BROWSE: %v", err)
			}
		}()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	defer l.Call(func() {
		c.manager.Disconnect(false)
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			var err error
			l.Call(func() {
				err = c.exec(line)
			})

			switch {
			case errors.Is(err, errQuit):
				return nil
			case err != nil:
				l.Call(func() { c.printf("%v", err) })
			}
		}
	}
}
