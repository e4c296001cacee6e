// Package protocol implements the CRLF line protocol spoken by bridge peers.
package protocol

import (
	"bytes"
	"strings"
)

// Terminator ends every line on the wire.
const Terminator = "\r\n"

// nameSeparator sits between the sender name and the line content.
const nameSeparator = ": "

// Message represents a relayed chat line
type Message struct {
	Sender  string
	Content string
}

// Encode encodes the message into its wire form: "<sender>: <content>\r\n"
func (m Message) Encode() []byte {
	return Format([]byte(m.Sender), []byte(m.Content))
}

// String returns the message without its terminator
func (m Message) String() string {
	return m.Sender + nameSeparator + m.Content
}

// Format prefixes line with the sender name and re-terminates it.
// The returned slice is freshly allocated and never aliases name or line,
// so it can be shared between any number of outbound queues.
func Format(name, line []byte) []byte {
	out := make([]byte, 0, len(name)+len(nameSeparator)+len(line)+len(Terminator))
	out = append(out, name...)
	out = append(out, nameSeparator...)
	out = append(out, line...)
	out = append(out, Terminator...)
	return out
}

// ParseMessage splits a received line (terminator already stripped) into
// sender and content. Names may not contain the separator for this to be
// exact; lines without a separator are returned with an empty Sender.
func ParseMessage(line []byte) Message {
	line = bytes.TrimSuffix(line, []byte(Terminator))
	sender, content, ok := strings.Cut(string(line), nameSeparator)
	if !ok {
		return Message{Content: string(line)}
	}
	return Message{Sender: sender, Content: content}
}

// Line terminates s for sending. Embedded CR and LF bytes are dropped so a
// single call never produces more than one line.
func Line(s string) []byte {
	s = strings.NewReplacer("\r", "", "\n", "").Replace(s)
	return []byte(s + Terminator)
}
