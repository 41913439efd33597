package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"go.klb.dev/clipcue/internal/crypto"
	"go.klb.dev/clipcue/internal/ipc"
	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/wire"
)

const requestTimeout = 10 * time.Second

// request sends one message to the daemon and returns its reply. An ERROR
// reply is returned as an error.
func request(ctx context.Context, v *viper.Viper, msg *message.Message) (*message.Message, error) {
	token := v.GetString("token")
	key, err := crypto.ForToken(token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	conn, err := ipc.Dial(ctx, ipc.SocketPath())
	if err != nil {
		return nil, err
	}
	wc := wire.New(conn, key)
	defer wc.Close()

	msg.Token = token
	if err := wc.WriteMsg(msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", msg.Type, err)
	}
	wc.SetReadDeadline(requestTimeout)
	reply, err := wc.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if reply.Type == message.TypeError {
		return nil, fmt.Errorf("daemon: %s", reply.Error)
	}
	return reply, nil
}
