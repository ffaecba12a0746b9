package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/andrei-cloud/anet"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// sendControl sends one plugin control frame to the daemon and returns the
// result document. Control requests that open a startup cohort are held by
// the daemon until resolution, so the connection deadline stays generous.
func sendControl(addr string, params map[string]any) (gjson.Result, error) {
	// The daemon may still be binding its listener; probe with a short
	// constant backoff before committing the connection pool.
	probe := func() error {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return err
		}

		return conn.Close()
	}
	if err := backoff.Retry(probe, backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 5)); err != nil {
		return gjson.Result{}, fmt.Errorf("control channel unreachable at %s: %w", addr, err)
	}

	factory := func(addr string) (anet.PoolItem, error) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err != nil {
			return nil, err
		}

		if err := conn.SetDeadline(time.Now().Add(90 * time.Second)); err != nil {
			conn.Close()

			return nil, err
		}

		return conn, nil
	}

	pool := anet.NewPool(1, factory, addr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	frame, err := json.Marshal(map[string]any{
		"id":     uuid.NewString(),
		"method": "plugin",
		"params": params,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode control frame: %w", err)
	}

	resp, err := broker.Send(&frame)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("control request failed: %w", err)
	}

	doc := gjson.ParseBytes(resp)
	if e := doc.Get("error"); e.Exists() {
		return gjson.Result{}, fmt.Errorf("%s (code %d)", e.Get("message").String(), e.Get("code").Int())
	}

	return doc.Get("result"), nil
}
