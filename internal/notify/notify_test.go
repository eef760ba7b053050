package notify

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both dispatchers must be probeable without delivering anything.
var (
	_ Pinger = (*LogDispatcher)(nil)
	_ Pinger = (*EmailDispatcher)(nil)
)

func TestLogDispatcher(t *testing.T) {
	ctx := context.Background()
	d := NewLogDispatcher()

	assert.NoError(t, d.SendAdminNotification(ctx, AdminNotification{Subject: "s", Message: "m"}))
	assert.NoError(t, d.SendUserNotification(ctx, UserNotification{UserID: "u-1", Subject: "s"}))
	assert.NoError(t, d.Ping(ctx))
}

func TestEmailDispatcherPingSendsNothing(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan int, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- -1
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- n
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	d := NewEmailDispatcher(SMTPConfig{Host: host, Port: port, AdminEmail: "admin@example.com"}, nil)
	require.NoError(t, d.Ping(context.Background()))

	assert.Equal(t, 0, <-received, "a reachability probe must not write to the connection")
}

func TestEmailDispatcherPingUnreachable(t *testing.T) {
	// Grab a free port, then close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	d := NewEmailDispatcher(SMTPConfig{Host: host, Port: port}, nil)
	assert.Error(t, d.Ping(context.Background()))
}
