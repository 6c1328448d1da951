package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is a small synchronous client for the CLI's use: one request,
// one response, with an optional long-lived read loop for Subscribe.
type Client struct {
	conn   net.Conn
	reader *bufio.Scanner
	writer *bufio.Writer
}

// Dial connects to the daemon's Unix socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon socket: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Client{conn: conn, reader: scanner, writer: bufio.NewWriter(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call sends a request and returns exactly one response Message.
func (c *Client) Call(kind Kind, payload any) (Message, error) {
	if err := c.send(kind, payload); err != nil {
		return Message{}, err
	}
	return c.Recv()
}

// Send writes a request without waiting for a response, for Subscribe
// followed by a long-lived Recv loop.
func (c *Client) Send(kind Kind, payload any) error {
	return c.send(kind, payload)
}

func (c *Client) send(kind Kind, payload any) error {
	msg, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := c.writer.Write(data); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Recv blocks for the next line-delimited Message from the daemon.
func (c *Client) Recv() (Message, error) {
	if !c.reader.Scan() {
		if err := c.reader.Err(); err != nil {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("connection closed by daemon")
	}
	var msg Message
	if err := json.Unmarshal(c.reader.Bytes(), &msg); err != nil {
		return Message{}, fmt.Errorf("decode response: %w", err)
	}
	return msg, nil
}

// AsError converts an error-kind Message into a Go error, or nil if
// msg is not an error response.
func AsError(msg Message) error {
	if msg.Kind != KindError {
		return nil
	}
	var resp ErrorResponse
	if err := Decode(msg, &resp); err != nil {
		return fmt.Errorf("malformed error response: %w", err)
	}
	return fmt.Errorf("%s: %s", resp.Code, resp.Message)
}
