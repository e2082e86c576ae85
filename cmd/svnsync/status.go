package main

import (
	"github.com/spf13/cobra"
)

func newStatusCommand(opts *globalOptions, std streams) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Print the working copy's resource groups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts, std, sessionOptions{path: pathArg(args)})
			if err != nil {
				return err
			}
			defer s.Close()

			if remote {
				if err := s.repo.StatusRemote(ctx); err != nil {
					return err
				}
			}
			writeStatus(cmd.OutOrStdout(), snapshot(s.repo))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&remote, "remote", "u", false, "Also check the repository for incoming changes")
	return cmd
}
