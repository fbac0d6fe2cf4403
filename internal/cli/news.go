package cli

import (
	"github.com/spf13/cobra"

	apperrors "habitstock/internal/errors"
	"habitstock/pkg/utils"
)

func newNewsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "news",
		Short: "AI news articles for completed tasks",
		Long: `Generates and lists news articles. Generating an article for a completed
task boosts its applied price delta by half once; a task can get at most one
article.`,
	}

	cmd.AddCommand(newNewsGenerateCmd(app))
	cmd.AddCommand(newNewsListCmd(app))
	return cmd
}

func newNewsGenerateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <task-id>",
		Short: "Generate a news article for a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.News == nil {
				return apperrors.Wrap(apperrors.ErrDatabaseError, "store unavailable, check database path and permissions")
			}
			output := NewOutput(cmd)

			article, err := app.News.Generate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			task, err := app.Ledger.Task(args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(article)
			}
			output.Info("%s", article.Title)
			output.Println(article.Content)
			output.Success("Boost applied: impact now +%s", utils.FormatMoney(task.AppliedPriceChange))
			output.Dim("  price: %s", utils.FormatMoney(app.Ledger.CurrentPrice()))
			return nil
		},
	}
}

func newNewsListCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generated news articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.News == nil {
				return apperrors.Wrap(apperrors.ErrDatabaseError, "store unavailable, check database path and permissions")
			}
			output := NewOutput(cmd)

			articles, err := app.News.Articles(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(articles)
			}
			if len(articles) == 0 {
				output.Dim("No articles yet.")
				return nil
			}
			for _, a := range articles {
				output.Info("%s", a.Title)
				output.Dim("  %s · task %s", a.CreatedAt.Format("2006-01-02"), a.TaskID)
				output.Println("  " + a.Content)
				output.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of articles")
	return cmd
}
