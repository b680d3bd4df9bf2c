package conductor

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"time"
)

// ipcConn wraps a single dialed connection to the conductor with
// line-delimited JSON request/response, single in-flight request at a
// time (spec §6).
type ipcConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialIPC(path string, timeout time.Duration) (*ipcConn, error) {
	c, err := net.DialTimeout(network(), path, timeout)
	if err != nil {
		return nil, err
	}
	return &ipcConn{conn: c, reader: bufio.NewReader(c)}, nil
}

func (c *ipcConn) Close() error {
	return c.conn.Close()
}

var errConnectionClosed = errors.New("conductor: connection closed by peer")

func decodeStatus(raw json.RawMessage, out *statusData) error {
	return json.Unmarshal(raw, out)
}

// request sends cmd and reads a single newline-delimited JSON response,
// bounded by timeout.
func (c *ipcConn) request(cmd command, timeout time.Duration) (response, error) {
	var resp response

	if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return resp, err
	}

	line, err := json.Marshal(cmd)
	if err != nil {
		return resp, err
	}
	line = append(line, '\n')
	if _, err := c.conn.Write(line); err != nil {
		return resp, err
	}

	respLine, err := c.reader.ReadString('\n')
	if err != nil {
		if respLine == "" {
			return resp, errConnectionClosed
		}
		return resp, err
	}

	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		return resp, err
	}
	return resp, nil
}
