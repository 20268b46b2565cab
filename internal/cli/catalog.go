package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/apresai/pitcharena/internal/app"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List or seed investor personas",
}

var personasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List investor personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp(cmd.Context(), app.ReadOnly())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Personas.ListPersonas(cmd.Context())
		if err != nil {
			return err
		}
		writePersonas(cmd.OutOrStdout(), list)
		return nil
	},
}

var personasSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default personas into an empty store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp(cmd.Context(), app.ReadOnly())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := persona.Seed(cmd.Context(), a.Store, time.Now().UTC())
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Personas already present, nothing seeded.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d personas.\n", n)
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded pitch sessions",
}

var flagAllUsers bool

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp(cmd.Context(), app.ReadOnly())
		if err != nil {
			return err
		}
		defer a.Close()

		user := flagUser
		if flagAllUsers {
			user = ""
		}
		writeSessions(cmd.OutOrStdout(), a.Engine.ListSessions(cmd.Context(), user))
		return nil
	},
}

var flagJSON bool

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp(cmd.Context(), app.ReadOnly())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Engine.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		writeTranscript(cmd.OutOrStdout(), s)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp(cmd.Context(), app.ReadOnly())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [user-id]",
	Short: "Show win/loss statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp(cmd.Context(), app.ReadOnly())
		if err != nil {
			return err
		}
		defer a.Close()

		user := flagUser
		if len(args) == 1 {
			user = args[0]
		}
		writeStats(cmd.OutOrStdout(), user, a.Engine.Stats(cmd.Context(), user))
		return nil
	},
}

func init() {
	personasCmd.AddCommand(personasListCmd, personasSeedCmd)
	sessionsListCmd.Flags().BoolVar(&flagAllUsers, "all", false, "List sessions of every user")
	sessionsShowCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the raw session JSON")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
}

func writePersonas(w io.Writer, list []persona.Persona) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tREGION\tSECTORS\tCHECK")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Role, p.Region, p.TargetSectors, p.CheckSize)
	}
	tw.Flush()
}

func writeSessions(w io.Writer, list []pitch.Session) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tSCORE\tROUNDS\tBACKEND")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Status, s.Score, s.UserTurns(), s.Backend)
	}
	tw.Flush()
}

// writeTranscript prints the conversation. Hidden rationales are not shown.
func writeTranscript(w io.Writer, s *pitch.Session) {
	fmt.Fprintf(w, "Session %s  status=%s  score=%d\n\n", s.ID, s.Status, s.Score)
	for _, t := range s.Turns {
		switch t.Speaker {
		case pitch.SpeakerUser:
			fmt.Fprintf(w, "You: %s\n\n", t.Text)
		default:
			if t.ScoreDelta != 0 {
				fmt.Fprintf(w, "Investor (%+d): %s\n\n", t.ScoreDelta, t.Text)
			} else {
				fmt.Fprintf(w, "Investor: %s\n\n", t.Text)
			}
		}
	}
}

func writeStats(w io.Writer, user string, st pitch.Stats) {
	fmt.Fprintf(w, "User %s: %d finished, %d won, %d lost, win rate %.2f%%\n",
		user, st.TotalSessions, st.Wins, st.Losses, st.WinRate)
}
