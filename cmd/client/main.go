package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	server "github.com/raorosz/Distributed-UserStore/kv-server"
	"github.com/raorosz/Distributed-UserStore/message"
)

const usage = "commands: read <username> | write <username> <ssn> | exit"

var errExit = errors.New("exit")

// shell sends one request per command line to a single node and prints the answer
type shell struct {
	addr   string
	client server.PeerClient
	logger hclog.Logger
	out    io.Writer
}

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "Usage: client <host> <port>")
		os.Exit(2)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "client",
		Level:  hclog.Warn,
		Output: os.Stderr,
	})

	sh := &shell{
		addr:   net.JoinHostPort(os.Args[1], os.Args[2]),
		client: server.NewTCPClient(5 * time.Second),
		logger: logger,
		out:    os.Stdout,
	}

	if err := sh.run(os.Stdin); err != nil {
		logger.Error("reading input failed", "error", err)
		os.Exit(1)
	}
}

func (sh *shell) run(in io.Reader) error {
	fmt.Fprintln(sh.out, usage)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		if err := sh.exec(scanner.Text()); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}

			fmt.Fprintln(sh.out, "error:", err)
		}
	}
}

func (sh *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	var req message.Message

	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		return errExit
	case "read":
		if len(fields) != 2 {
			return fmt.Errorf("usage: read <username>")
		}
		req = message.ReadRequest{Username: fields[1]}
	case "write":
		if len(fields) != 3 {
			return fmt.Errorf("usage: write <username> <ssn>")
		}
		req = message.WriteRequest{Username: fields[1], SSN: fields[2]}
	default:
		return fmt.Errorf("unknown command %q, %s", fields[0], usage)
	}

	sh.logger.Debug("sending request", "kind", req.Kind(), "addr", sh.addr)

	resp, err := sh.client.SendAndAwait(sh.addr, req)
	if err != nil {
		return err
	}

	sh.render(resp)
	return nil
}

func (sh *shell) render(resp message.Message) {
	switch r := resp.(type) {
	case message.ReadResponse:
		if r.Found {
			fmt.Fprintf(sh.out, "User: %s, SSN: %s\n", r.Username, r.SSN)
		} else {
			fmt.Fprintln(sh.out, "User not found.")
		}
	case message.Acknowledgment:
		fmt.Fprintln(sh.out, r.Text)
	case message.ErrorMessage:
		fmt.Fprintln(sh.out, "error:", r.Text)
	default:
		fmt.Fprintf(sh.out, "unexpected response: %s\n", resp.Kind())
	}
}
