package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newhook/runlens/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a runlens project",
	Long: `Create .runlens/ in the given directory (default: the current directory) with a
documented config.toml and an empty run history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	proj, err := project.Create(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	defer proj.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized runlens project %q\n", proj.Config.Project.Name)
	fmt.Fprintf(out, "  Config:   %s\n", proj.Path(project.ConfigDir+"/"+project.ConfigFile))
	fmt.Fprintf(out, "  History:  %s\n", proj.Path(proj.Config.History.GetDatabase()))
	fmt.Fprintf(out, "  Logs:     %s\n", proj.Path(proj.Config.History.GetLogsDir()))
	return nil
}
