package rpcutil

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/rpc"
)

const connected = "200 Connected to Go RPC"

// Dial connects to an RPC server served over HTTP on addr.
func Dial(ctx context.Context, addr string) (*rpc.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, "CONNECT "+rpc.DefaultRPCPath+" HTTP/1.0\n\n"); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: "CONNECT"})
	if err == nil && resp.Status != connected {
		err = errors.New("unexpected HTTP response: " + resp.Status)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return rpc.NewClient(conn), nil
}

// Call dials addr, invokes method and waits for the reply or ctx.
func Call(ctx context.Context, addr, method string, args, reply any) error {
	client, err := Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	return Invoke(ctx, client, method, args, reply)
}

// Invoke runs method on an open client and gives up once ctx is done.
func Invoke(ctx context.Context, client *rpc.Client, method string, args, reply any) error {
	call := client.Go(method, args, reply, make(chan *rpc.Call, 1))

	select {
	case <-call.Done:
		if call.Error != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return call.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}
