package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/nebula/pkg/adapters/lifecycle"
	"github.com/aretw0/nebula/pkg/core"
)

var (
	sendFile       string
	receiveWait    bool
	receiveTimeout time.Duration
)

// parseQueue accepts a tag or one of the well-known queue names.
func parseQueue(s string) core.Tag {
	switch s {
	case "events":
		return core.EventQueue
	case "send":
		return core.SendQueue
	}
	tag, err := core.ParseTag(s)
	if err != nil {
		fatal("Invalid queue", err)
	}
	return tag
}

var sendCmd = &cobra.Command{
	Use:   "send [queue]",
	Short: "Notarize a message and place it on a queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue := parseQueue(args[0])
		msg := readDocument(sendFile)

		svc, _ := openService()
		tag, err := svc.QueueMessage(context.Background(), queue, msg)
		if err != nil {
			fatal("Failed to send message", err)
		}
		fmt.Printf("Message %s queued on %s.\n", tag, queue)
	},
}

var receiveCmd = &cobra.Command{
	Use:   "receive [queue]",
	Short: "Claim one message from a queue",
	Long: `Claim one message from a queue and print it. The message is removed
from the queue. With --wait the command blocks until a message arrives.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue := parseQueue(args[0])
		svc, _ := openService()

		ctx, stop := signalContext()
		defer stop()
		if receiveTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, receiveTimeout)
			defer cancel()
		}

		var (
			msg *core.Document
			err error
		)
		if receiveWait {
			msg, err = svc.AwaitMessage(ctx, queue)
		} else {
			msg, err = svc.ReceiveMessage(ctx, queue)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintln(os.Stderr, "No message received.")
			return
		}
		if err != nil {
			fatal("Failed to receive message", err)
		}
		if msg == nil {
			fmt.Fprintln(os.Stderr, "Queue is empty.")
			return
		}
		printDocument(msg)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [queue]",
	Short: "Print queue events as they happen",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue := parseQueue(args[0])
		svc, _ := openService()

		w, ok := svc.Repository().(core.Watchable)
		if !ok {
			fatal("Failed to watch queue", fmt.Errorf("%w: the configured adapter cannot watch queues", core.ErrInvalidParameter))
		}

		ctx, stop := signalContext()
		defer stop()

		events, err := w.Watch(ctx, string(queue))
		if err != nil {
			fatal("Failed to watch queue", err)
		}
		src := lifecycle.NewSource(events)
		if err := src.Start(ctx); err != nil {
			fatal("Failed to start event source", err)
		}
		for e := range src.Events() {
			fmt.Println(e.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiveCmd)
	rootCmd.AddCommand(watchCmd)

	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "-", "Message file (\"-\" for stdin)")
	receiveCmd.Flags().BoolVarP(&receiveWait, "wait", "w", false, "Block until a message arrives")
	receiveCmd.Flags().DurationVar(&receiveTimeout, "timeout", 0, "Give up waiting after this long")
}
