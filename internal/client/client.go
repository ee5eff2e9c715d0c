package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/uci"
)

const (
	DefaultStopTimeout = 500 * time.Millisecond
	DefaultQuitTimeout = time.Second
	DefaultRecordLimit = 200
)

// Client drives a UCI engine over a duplex stream. Responses are read by a
// background goroutine and handed out in order by Next and All.
type Client struct {
	Logger Logger

	stopTimeout time.Duration
	quitTimeout time.Duration
	recordLimit int

	writeMu sync.Mutex
	w       io.Writer
	closer  io.Closer
	closed  atomic.Bool

	recordMu sync.Mutex
	record   []string

	responses *responseBuffer
	done      chan struct{}

	// bestmoves owed by searches that gave up waiting after stop
	abandoned atomic.Int32

	// set for launched processes
	kill func() error
	wait func() error
}

type Option func(*Client)

func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.Logger = logger
	}
}

// WithStopTimeout bounds how long Search waits for bestmove after sending
// stop on cancellation.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.stopTimeout = d
	}
}

func WithQuitTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.quitTimeout = d
	}
}

func WithRecordLimit(lines int) Option {
	return func(c *Client) {
		c.recordLimit = lines
	}
}

func newClient(w io.Writer, opts ...Option) *Client {
	c := &Client{
		stopTimeout: DefaultStopTimeout,
		quitTimeout: DefaultQuitTimeout,
		recordLimit: DefaultRecordLimit,
		w:           w,
		responses:   newResponseBuffer(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = &DefaultLogger
	}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// New reads responses from r and writes commands to w. If w is an
// io.Closer it is closed by Close.
func New(r io.Reader, w io.Writer, opts ...Option) *Client {
	c := newClient(w, opts...)
	go c.read(r)
	return c
}

func avoidSpam(line string) bool {
	if strings.Contains(line, "multipv") && !strings.Contains(line, "multipv 1 ") {
		return true
	}
	if strings.Contains(line, "currmove") {
		return true
	}
	return false
}

func (c *Client) read(r io.Reader) {
	defer close(c.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		c.remember("out: " + line)
		if !avoidSpam(line) {
			c.Logger.Println("stdout: ", Ellipses(line, 140))
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		response, err := uci.ParseResponse(line)
		if err != nil {
			c.Logger.Println("skipping", err)
			continue
		}
		c.responses.Update(response)
	}

	if err := scanner.Err(); err != nil {
		c.responses.Close(&TransportError{Op: "read", Err: err, Record: c.Flush()})
		return
	}
	c.responses.Close(io.EOF)
}

func (c *Client) remember(line string) {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	c.record = append(c.record, strings.TrimSpace(line))
	if c.recordLimit > 0 && len(c.record) > c.recordLimit {
		c.record = c.record[len(c.record)-c.recordLimit:]
	}
}

// Flush renders the recent traffic, oldest first.
func (c *Client) Flush() string {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	return Indent(strings.Join(c.record, "\n"), "> ")
}

func (c *Client) Send(cmd uci.Command) error {
	if c.closed.Load() {
		return ErrClosed
	}
	line := uci.Serialize(cmd)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.remember("in:  " + line)
	c.Logger.Println("stdin: ", strings.TrimSpace(line))
	if _, err := io.WriteString(c.w, line); err != nil {
		return &TransportError{Op: "write", Err: err, Record: c.Flush()}
	}
	return nil
}

// Next blocks until the next response. It returns io.EOF once the engine
// closed its output and every response was consumed.
func (c *Client) Next(ctx context.Context) (uci.Response, error) {
	for {
		response, err, updated := c.responses.Pop()
		if response != nil || err != nil {
			return response, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-updated:
		}
	}
}

// All yields responses in arrival order until the stream ends. It can't be
// restarted: responses consumed by one iteration are gone.
func (c *Client) All(ctx context.Context) iter.Seq2[uci.Response, error] {
	return func(yield func(uci.Response, error) bool) {
		for {
			response, err := c.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(response, err) || err != nil {
				return
			}
		}
	}
}

// Synchronize sends isready and waits for its readyok. Concurrent callers
// are matched to readyok responses in the order they registered.
func (c *Client) Synchronize(ctx context.Context) error {
	waiter := c.responses.Wait()
	if err := c.Send(uci.IsReady{}); err != nil {
		c.responses.Cancel(waiter)
		return err
	}

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		if !c.responses.Cancel(waiter) {
			return nil
		}
		return ctx.Err()
	case <-c.done:
		if !c.responses.Cancel(waiter) {
			return nil
		}
		if _, err := c.responses.Done(); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return &TransportError{Op: "isready", Err: io.ErrUnexpectedEOF, Record: c.Flush()}
	}
}

type EngineInfo struct {
	Name    string
	Author  string
	Options []uci.Option
}

// Handshake sends uci and collects the identity and options up to uciok.
func (c *Client) Handshake(ctx context.Context) (EngineInfo, error) {
	info := EngineInfo{}
	if err := c.Send(uci.UCI{}); err != nil {
		return info, err
	}
	for {
		response, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return info, &TransportError{Op: "uci", Err: io.ErrUnexpectedEOF, Record: c.Flush()}
		}
		if err != nil {
			return info, err
		}
		switch r := response.(type) {
		case uci.IDName:
			info.Name = r.Name
		case uci.IDAuthor:
			info.Author = r.Author
		case uci.Option:
			info.Options = append(info.Options, r)
		case uci.UCIOk:
			return info, nil
		default:
			c.Logger.Println("ignoring during handshake", r)
		}
	}
}

// discardAbandoned drops responses up to and including the late bestmove of
// every search that returned without one.
func (c *Client) discardAbandoned(ctx context.Context) error {
	for c.abandoned.Load() > 0 {
		response, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return &TransportError{Op: "go", Err: io.ErrUnexpectedEOF, Record: c.Flush()}
		}
		if err != nil {
			return err
		}
		if _, ok := response.(uci.BestMove); ok {
			c.abandoned.Add(-1)
		}
		c.Logger.Println("discarding from abandoned search", response)
	}
	return nil
}

// Search sets up pos, sends g and returns the engine's bestmove. Info lines
// are passed to onInfo. When ctx is cancelled stop is sent and the bestmove
// is still awaited for the stop timeout; if it comes later it is discarded
// by the next Search.
func (c *Client) Search(ctx context.Context, pos uci.Position, g uci.Go, onInfo func(uci.Info)) (uci.BestMove, error) {
	if err := c.discardAbandoned(ctx); err != nil {
		return uci.BestMove{}, err
	}
	if err := c.Send(pos); err != nil {
		return uci.BestMove{}, err
	}
	if err := c.Send(g); err != nil {
		return uci.BestMove{}, err
	}

	readCtx := ctx
	stopped := false
	for {
		response, err := c.Next(readCtx)
		switch {
		case err == nil:
		case !stopped && ctx.Err() != nil && errors.Is(err, ctx.Err()):
			stopped = true
			if err := c.Send(uci.Stop{}); err != nil {
				return uci.BestMove{}, err
			}
			var cancel context.CancelFunc
			readCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.stopTimeout)
			defer cancel()
			continue
		case stopped && readCtx.Err() != nil:
			c.abandoned.Add(1)
			return uci.BestMove{}, ctx.Err()
		case errors.Is(err, io.EOF):
			return uci.BestMove{}, &TransportError{Op: "go", Err: io.ErrUnexpectedEOF, Record: c.Flush()}
		default:
			return uci.BestMove{}, err
		}

		switch r := response.(type) {
		case uci.Info:
			if onInfo != nil {
				onInfo(r)
			}
		case uci.BestMove:
			return r, nil
		default:
			c.Logger.Println("ignoring during search", r)
		}
	}
}

// Close sends quit, closes the command stream and waits for the engine to
// close its output. Launched processes are killed after the quit timeout.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		c.remember("in:  quit")
		_, _ = io.WriteString(c.w, uci.Serialize(uci.Quit{}))
	}()
	select {
	case <-written:
	case <-time.After(c.quitTimeout):
	}
	if c.closer != nil {
		_ = c.closer.Close()
	}

	killed := false
	select {
	case <-c.done:
	case <-time.After(c.quitTimeout):
		if c.kill != nil {
			c.Logger.Println("killing engine after quit timeout")
			killed = true
			_ = c.kill()
			<-c.done
		}
	}

	if c.wait != nil {
		if err := c.wait(); err != nil && !killed {
			return Wrap(err).Err()
		}
	}
	return nil
}
