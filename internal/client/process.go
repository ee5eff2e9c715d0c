package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	. "github.com/cricklet/chessuci/internal/helpers"
)

// Launch starts the engine binary at path and connects a client to its
// stdin and stdout. Stderr is kept in the traffic record.
func Launch(ctx context.Context, path string, args []string, opts ...Option) (*Client, error) {
	cmd := exec.CommandContext(ctx, path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, Wrap(err).Err()
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, Wrap(err).Err()
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, Wrap(err).Err()
	}

	c := newClient(stdin, opts...)
	c.Logger = PrefixLogger(filepath.Base(path), c.Logger)
	c.Logger.Println(path, args)

	if err := cmd.Start(); err != nil {
		return nil, Wrap(fmt.Errorf("starting %v: %w", path, err)).Err()
	}
	c.kill = cmd.Process.Kill
	c.wait = cmd.Wait

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			c.remember("err: " + scanner.Text())
		}
	}()
	go c.read(stdout)

	return c, nil
}

// Pipe runs an in-process engine loop, eg. engine.Engine.Run, and connects
// a client to it. An error returned by run surfaces as a TransportError.
func Pipe(ctx context.Context, run func(ctx context.Context, r io.Reader, w io.Writer) error, opts ...Option) *Client {
	commandsR, commandsW := io.Pipe()
	responsesR, responsesW := io.Pipe()
	go func() {
		err := run(ctx, commandsR, responsesW)
		_ = commandsR.Close()
		_ = responsesW.CloseWithError(err)
	}()
	return New(responsesR, commandsW, opts...)
}
