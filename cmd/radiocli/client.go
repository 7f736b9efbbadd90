package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osa030/19radio/internal/api/httpapi"
	"github.com/osa030/19radio/internal/app/notification"
)

// client talks to the radio server's JSON API.
type client struct {
	base    string
	user    string
	name    string
	token   string
	timeout time.Duration
}

func (c *client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set(httpapi.UserIDHeader, c.user)
	}
	if c.name != "" {
		req.Header.Set(httpapi.DisplayNameHeader, c.name)
	}
	if c.token != "" {
		req.Header.Set(httpapi.AdminTokenHeader, c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var env httpapi.Envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Message == "" {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return fmt.Errorf("%s: %s", env.Code, env.Message)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

// command posts a command and prints its result code and message.
func (c *client) command(path string, body any) error {
	var env httpapi.Envelope
	if err := c.do(http.MethodPost, path, body, &env); err != nil {
		return err
	}
	printEnvelope(env)
	return nil
}

func (c *client) delete(path string) error {
	var env httpapi.Envelope
	if err := c.do(http.MethodDelete, path, nil, &env); err != nil {
		return err
	}
	printEnvelope(env)
	return nil
}

func printEnvelope(env httpapi.Envelope) {
	if env.Code == "success" {
		fmt.Printf("Success: %s\n", env.Message)
		return
	}
	fmt.Printf("Rejected [%s]: %s\n", env.Code, env.Message)
}

// subscribe streams notifications until the connection drops.
func (c *client) subscribe(ctx context.Context, path string, handle func(*notification.Notification)) error {
	url := "ws" + strings.TrimPrefix(c.base, "http") + path
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")
	for {
		var n notification.Notification
		if err := conn.ReadJSON(&n); err != nil {
			return err
		}
		handle(&n)
	}
}
