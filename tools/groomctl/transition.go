package main

import (
	"github.com/md-rashed-zaman/groombook/libs/relayclient"
	"github.com/spf13/cobra"
)

func newTransitionCmd(g *globalFlags) *cobra.Command {
	var req relayclient.TransitionRequest
	cmd := &cobra.Command{
		Use:   "transition APPOINTMENT_ID ACTION",
		Short: "Apply an action (accept, reject, propose_reschedule, ...) to an appointment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AppointmentID, req.Action = args[0], args[1]
			res, err := relayclient.NewAPI(g.apiURL, g.token).Transition(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&req.Reason, "reason", "", "rejection or reschedule reason")
	cmd.Flags().StringVar(&req.ProposedDate, "date", "", "proposed date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.ProposedTime, "time", "", "proposed start (HH:MM)")
	return cmd
}
