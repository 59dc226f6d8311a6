package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	grpcpkg "github.com/goclaw/dayloop/pkg/grpc"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

func newWatchCmd(opts *options) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream actor events over gRPC",
		Long:  "watch prints one JSON event per line for --actor, or for every actor when none is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
			if opts.dialer != nil {
				dialOpts = append(dialOpts, grpc.WithContextDialer(opts.dialer))
			}
			conn, err := grpc.NewClient(opts.grpcAddr, dialOpts...)
			if err != nil {
				return fmt.Errorf("connect %s: %w", opts.grpcAddr, err)
			}
			defer conn.Close()

			stream, err := grpcpkg.NewActorClient(conn).WatchEvents(cmd.Context(), opts.actor)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for seen := 0; count <= 0 || seen < count; seen++ {
				env, err := stream.Recv()
				if err != nil {
					if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
						return nil
					}
					return fmt.Errorf("watch: %w", err)
				}
				if err := enc.Encode(env); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Stop after this many events")
	return cmd
}
