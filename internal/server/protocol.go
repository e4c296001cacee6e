package server

import (
	"bufio"
	"bytes"
	"errors"
)

type protocolType int

const (
	protocolTCP protocolType = iota
	protocolWebSocket
)

// upgradePrefix starts every WebSocket opening handshake.
const upgradePrefix = "GET "

// detectProtocol peeks at the first line to determine protocol type.
// Only a complete "GET <target> HTTP/1.x" request line selects WebSocket;
// a raw peer whose name merely starts with "GET " stays on TCP. Peeking
// stops at the first byte that departs from "GET ", so a short name such
// as "a\r\n" is never held waiting for more input. Nothing is consumed.
func detectProtocol(reader *bufio.Reader) (protocolType, error) {
	for i := 0; i < len(upgradePrefix); i++ {
		peek, err := reader.Peek(i + 1)
		if err != nil {
			return protocolTCP, err
		}
		if peek[i] != upgradePrefix[i] {
			return protocolTCP, nil
		}
	}

	n := len(upgradePrefix)
	for {
		peek, err := reader.Peek(n)
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				// Longer than any request line we accept.
				return protocolTCP, nil
			}
			return protocolTCP, err
		}
		if i := bytes.Index(peek, []byte("\r\n")); i >= 0 {
			if isRequestLine(peek[:i]) {
				return protocolWebSocket, nil
			}
			return protocolTCP, nil
		}
		n = max(n, reader.Buffered()) + 1
	}
}

// isRequestLine reports whether line is "GET <target> HTTP/1.<minor>".
func isRequestLine(line []byte) bool {
	parts := bytes.Split(line, []byte(" "))
	if len(parts) != 3 || string(parts[0]) != "GET" || len(parts[1]) == 0 {
		return false
	}
	version, ok := bytes.CutPrefix(parts[2], []byte("HTTP/1."))
	return ok && len(version) == 1 && version[0] >= '0' && version[0] <= '9'
}

func (p protocolType) String() string {
	switch p {
	case protocolTCP:
		return "tcp"
	case protocolWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}
