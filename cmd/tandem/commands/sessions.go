package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tandemcode/tandem/internal/config"
	"github.com/tandemcode/tandem/internal/transcript"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved task transcripts",
	Long: `List the transcripts of past runs, newest first. Each run is saved
automatically when it finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := transcript.NewStore(filepath.Join(config.GetPaths().Data, "transcripts"))
		records, err := store.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no sessions found")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%s  %s  %-24s %s\n",
				rec.ID,
				rec.CreatedAt.Format("2006-01-02 15:04"),
				rec.State,
				rec.Title())
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the messages of a saved transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := transcript.NewStore(filepath.Join(config.GetPaths().Data, "transcripts"))
		rec, err := store.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s, %d iterations)\n\n", rec.Title(), rec.State, rec.Iterations)
		for _, m := range rec.Messages {
			fmt.Printf("[%s]\n%s\n\n", m.Role, m.Content)
		}
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
}
