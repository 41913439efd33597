package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipcue/internal/cli"
	"go.klb.dev/clipcue/internal/crypto"
	"go.klb.dev/clipcue/internal/ipc"
	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/readtime"
	"go.klb.dev/clipcue/internal/surfaceclient"
	"go.klb.dev/clipcue/internal/tlsconf"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach this terminal as an interface surface",
		Long: `Attaches to the running daemon and prints every capture delivered to
--label, with its word count and an estimated reading time. With --timer a
countdown bar runs for that reading time; a new capture restarts it.

Focus requests ring the terminal bell.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return cli.BindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), v)
		},
	}

	f := cmd.Flags()
	f.String("label", message.DefaultLabel, "surface label to attach under")
	f.Bool("timer", false, "show a reading-time countdown after each capture")
	f.String("ws", "", "attach over WebSocket at this host:port instead of the IPC socket")
	f.Bool("ws-tls", false, "use wss and verify the daemon's key against --token")
	cli.AddTokenFlag(cmd)
	cli.AddLoggingFlags(cmd)
	cli.AddConfigFlag(cmd)

	return cmd
}

func runWatch(ctx context.Context, out io.Writer, v *viper.Viper) error {
	cli.SetupLogging(v)

	label := v.GetString("label")
	token := v.GetString("token")

	var (
		sess *surfaceclient.Session
		err  error
	)
	if addr := v.GetString("ws"); addr != "" {
		var tlsCfg *tls.Config
		if v.GetBool("ws-tls") {
			if tlsCfg, err = tlsconf.ClientConfig(token); err != nil {
				return fmt.Errorf("--ws-tls: %w", err)
			}
		}
		sess, err = surfaceclient.AttachWS(ctx, addr, label, token, tlsCfg)
	} else {
		key, kerr := crypto.ForToken(token)
		if kerr != nil {
			return kerr
		}
		conn, derr := ipc.Dial(ctx, ipc.SocketPath())
		if derr != nil {
			return derr
		}
		sess, err = surfaceclient.Attach(ctx, conn, key, label, token)
	}
	if err != nil {
		return err
	}
	defer sess.Close()

	slog.Info("surface attached", "label", sess.Label())
	fmt.Fprintf(out, "Waiting for captures on %q…\n", sess.Label())

	var cd *countdown
	if v.GetBool("timer") {
		cd = &countdown{out: out}
		defer cd.cancel()
	}

	for msg := range sess.Messages() {
		switch msg.Type {
		case message.TypeEvent:
			if msg.Event != message.EventClipboardCaptured {
				slog.Debug("ignoring event", "event", msg.Event)
				continue
			}
			if cd != nil {
				cd.cancel()
			}
			est := renderCapture(out, msg.Payload, time.Now())
			if cd != nil {
				cd.restart(est)
			}
		case message.TypeFocus:
			fmt.Fprint(out, "\a")
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := sess.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("surface session: %w", err)
	}
	return errors.New("daemon closed the connection")
}

// renderCapture prints a capture and returns its reading-time estimate.
func renderCapture(w io.Writer, text string, at time.Time) time.Duration {
	words := readtime.Words(text)
	est := readtime.Estimate(words)
	fmt.Fprintf(w, "\n--- %s · %d words · ~%s read ---\n%s\n",
		at.Format("15:04:05"), words, est, text)
	return est
}

// countdown drives one reading-time bar at a time.
type countdown struct {
	out io.Writer

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (c *countdown) restart(d time.Duration) {
	c.cancel()
	stop := make(chan struct{})
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()
	c.wg.Add(1)
	go c.run(d, stop)
}

// cancel stops the running bar, if any, and waits for it to clear.
func (c *countdown) cancel() {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *countdown) run(d time.Duration, stop <-chan struct{}) {
	defer c.wg.Done()

	secs := int64(d / time.Second)
	bar := progressbar.NewOptions64(secs,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("reading"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for elapsed := int64(0); elapsed < secs; {
		select {
		case <-stop:
			_ = bar.Clear()
			return
		case <-ticker.C:
			elapsed++
			_ = bar.Set64(elapsed)
		}
	}
	_ = bar.Finish()
	fmt.Fprintln(c.out, "Time's up.")
}
