package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jolt-daemon/jolt/internal/ipc"
	"github.com/jolt-daemon/jolt/internal/paths"
)

// newPipeCmd builds the "pipe" command: it subscribes to the running
// daemon's sample stream and prints one Sample JSON object per tick to
// stdout, for shell pipelines (spec §6).
func newPipeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipe",
		Short: "Stream one Sample JSON object per tick to stdout",
		RunE:  runPipe,
	}
}

func runPipe(cmd *cobra.Command, args []string) error {
	client, err := ipc.Dial(paths.SocketPath())
	if err != nil {
		return newExit(4, fmt.Errorf("daemon not running: %w", err))
	}
	defer client.Close()

	if err := client.Send(ipc.KindSubscribe, ipc.SubscribeRequest{Stream: "samples"}); err != nil {
		return newExit(1, fmt.Errorf("subscribe: %w", err))
	}

	enc := json.NewEncoder(os.Stdout)
	for {
		msg, err := client.Recv()
		if err != nil {
			return newExit(1, fmt.Errorf("receive: %w", err))
		}
		switch msg.Kind {
		case ipc.KindSampleEvent:
			var event ipc.SampleEvent
			if err := ipc.Decode(msg, &event); err != nil {
				return newExit(1, fmt.Errorf("decode sample event: %w", err))
			}
			if err := enc.Encode(event.Sample); err != nil {
				return newExit(1, err)
			}
		case ipc.KindShutdown:
			return nil
		case ipc.KindError:
			return newExit(1, ipc.AsError(msg))
		}
	}
}
