package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipcue/internal/cli"
	"go.klb.dev/clipcue/internal/ipc"
	"go.klb.dev/clipcue/internal/message"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show the registered shortcut and attached surfaces",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return cli.BindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			reply, err := request(cmd.Context(), v, &message.Message{Type: message.TypeStatus})
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reply)
			}
			printStatus(cmd.OutOrStdout(), reply, ipc.SocketPath())
			return nil
		},
	}

	f := cmd.Flags()
	f.Bool("json", false, "output raw JSON")
	cli.AddTokenFlag(cmd)
	cli.AddConfigFlag(cmd)

	return cmd
}

func printStatus(out io.Writer, resp *message.Message, socket string) {
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Socket:\t%s\n", socket)
	fmt.Fprintf(w, "Shortcut:\t%s\n", orDash(resp.Shortcut))
	fmt.Fprintf(w, "Target:\t%s\n", resp.LabelOf())
	fmt.Fprintf(w, "Clipboard:\t%s\n", orDash(resp.Backend))
	fmt.Fprintln(w)
	_ = w.Flush()

	if len(resp.Surfaces) == 0 {
		fmt.Fprintln(out, "No surfaces attached.")
		return
	}

	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "\tLABEL\tID\tTRANSPORT\tADDR\tCONNECTED\tLAST SEEN\tDELIVERED\n")
	_, _ = fmt.Fprintf(tw, "\t-----\t--\t---------\t----\t---------\t---------\t---------\n")
	for _, s := range resp.Surfaces {
		marker := ""
		if s.Active && s.Label == resp.LabelOf() {
			marker = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			marker, s.Label, s.ID, s.Transport, orDash(s.Addr),
			fmtAge(s.ConnectedAt), fmtAge(s.LastSeen), s.Delivered,
		)
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Format("15:04:05")
}
