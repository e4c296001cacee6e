package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/omochice/bridge-chat/pkg/protocol"
)

// Session joins with c and then pumps lines both ways: every non-empty line
// of in is sent, and every relayed message is printed to out. It returns when
// in is exhausted, the user types "quit" or "exit", the server hangs up, or
// ctx is done. c must already be connected.
func Session(ctx context.Context, c Client, in io.Reader, out io.Writer) error {
	if err := c.Join(); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for msg := range c.Messages() {
			printMessage(out, msg)
		}
	}()

	lines := make(chan string)
	inputErr := make(chan error, 1)
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
		inputErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-printed:
			fmt.Fprintln(out, "*** server closed the connection ***")
			return nil
		case text, ok := <-lines:
			if !ok {
				select {
				case err := <-inputErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				return nil
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if text == "quit" || text == "exit" {
				return nil
			}
			if err := c.SendMessage(text); err != nil {
				return err
			}
		}
	}
}

func printMessage(out io.Writer, msg protocol.Message) {
	if msg.Sender == "" {
		fmt.Fprintln(out, msg.Content)
		return
	}
	fmt.Fprintf(out, "[%s]: %s\n", msg.Sender, msg.Content)
}
