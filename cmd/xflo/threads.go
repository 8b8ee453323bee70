package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/xflo/store"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List stored threads, most recently active first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		driver, s, err := openStore(cmd.Context(), p)
		if err != nil {
			return err
		}
		defer driver.Close()

		printThreads(cmd.OutOrStdout(), s.Threads(), s.CurrentThreadID())
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func displayName(th store.Thread) string {
	if th.Name == "" {
		return "(untitled)"
	}
	return th.Name
}

func printThreads(w io.Writer, threads []store.Thread, currentID string) {
	if len(threads) == 0 {
		fmt.Fprintln(w, "no threads")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tMODEL\tMESSAGES\tLAST ACTIVE")
	for _, th := range threads {
		marker := ""
		if th.ID == currentID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			marker, shortID(th.ID), displayName(th), th.Model, len(th.Messages),
			time.UnixMilli(th.LastActive).Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}
