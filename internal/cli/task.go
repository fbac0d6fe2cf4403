package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/pkg/utils"
)

func newTaskCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Create, complete, list, edit and remove tasks. Each task carries a frozen price delta applied on completion.",
	}

	cmd.AddCommand(newTaskAddCmd(app))
	cmd.AddCommand(newTaskDoneCmd(app))
	cmd.AddCommand(newTaskListCmd(app))
	cmd.AddCommand(newTaskRmCmd(app))
	cmd.AddCommand(newTaskEditCmd(app))
	return cmd
}

func newTaskAddCmd(app *App) *cobra.Command {
	var difficulty string
	var date string

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a new task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			text := strings.Join(args, " ")
			d := models.Difficulty(difficulty)
			if !d.Valid() {
				return apperrors.Wrapf(apperrors.ErrUnknownDifficulty, "%q (valid: %s)",
					difficulty, strings.Join(difficultyNames(), ", "))
			}
			if date == "" {
				date = utils.Today()
			}
			if !utils.ValidDate(date) {
				return apperrors.Wrapf(apperrors.ErrInputValidation, "invalid date %q, want YYYY-MM-DD", date)
			}

			task, err := app.Ledger.Create(cmd.Context(), text, d, date)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(task)
			}
			output.Success("Added task %s", task.ID)
			output.Printf("  %s (%s, due %s)\n", task.Text, task.Difficulty, task.DueDate)
			output.Dim("  potential impact: +%s (%.1f%%)", utils.FormatMoney(task.PriceChange), task.Percentage)
			return nil
		},
	}

	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", "medium", "task difficulty (easy|medium|hard|extreme)")
	cmd.Flags().StringVar(&date, "date", "", "due date YYYY-MM-DD (default: today)")
	return cmd
}

func newTaskDoneCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "done <task-id>",
		Short: "Toggle task completion",
		Long:  "Marks an incomplete task completed, applying its price delta; run again to undo, which subtracts exactly the same delta.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			task, err := app.Ledger.Toggle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(task)
			}
			if task.Completed {
				output.Success("Completed %q  %s", task.Text, output.FormatChange(task.AppliedPriceChange))
			} else {
				output.Warning("Reopened %q  %s", task.Text, output.FormatChange(-task.PriceChange))
			}
			output.Dim("  price: %s", utils.FormatMoney(app.Ledger.CurrentPrice()))
			return nil
		},
	}
}

func newTaskListCmd(app *App) *cobra.Command {
	var date string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			filter := date
			if filter == "" && !all {
				filter = utils.Today()
			}
			if all {
				filter = ""
			}
			if filter != "" && !utils.ValidDate(filter) {
				return apperrors.Wrapf(apperrors.ErrInputValidation, "invalid date %q, want YYYY-MM-DD", filter)
			}

			tasks := app.Ledger.Tasks(filter)
			if output.IsJSON() {
				return output.JSON(tasks)
			}
			if len(tasks) == 0 {
				output.Dim("No tasks.")
				return nil
			}

			table := NewTable(output, "ID", "STATUS", "TASK", "DIFFICULTY", "DUE", "IMPACT")
			for _, t := range tasks {
				status := output.DimText("open")
				impact := fmt.Sprintf("+%s", utils.FormatMoney(t.PriceChange))
				if t.Completed {
					status = output.Green("done")
					impact = output.Green(fmt.Sprintf("+%s", utils.FormatMoney(t.AppliedPriceChange)))
				}
				text := t.Text
				if t.HasGeneratedNews {
					text += " " + output.DimText("[news]")
				}
				table.AddRow(t.ID, status, text, string(t.Difficulty), t.DueDate, impact)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "show tasks due on date YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&all, "all", false, "show tasks for all dates")
	return cmd
}

func newTaskRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <task-id>",
		Short: "Remove a task",
		Long:  "Deletes a task. If the task was completed its applied price delta is reversed first so the aggregate stays consistent.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			task, err := app.Ledger.Task(args[0])
			if err != nil {
				return err
			}
			if err := app.Ledger.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("Removed %q", task.Text)
			if task.Completed {
				output.Dim("  reversed %s from the price", utils.FormatSigned(-task.AppliedPriceChange))
			}
			return nil
		},
	}
}

func newTaskEditCmd(app *App) *cobra.Command {
	var text string
	var difficulty string
	var date string

	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit a task",
		Long: `Edits a task's text, difficulty or due date.

Changing the difficulty re-draws the potential price delta at the new level;
an already applied delta is untouched until the task is toggled again.
Changing the due date moves any applied delta to the new day's bar.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			taskID := args[0]

			if text == "" && difficulty == "" && date == "" {
				return apperrors.Wrap(apperrors.ErrInputValidation, "nothing to edit, pass --text, --difficulty or --date")
			}

			var (
				task models.Task
				err  error
			)
			if text != "" {
				if task, err = app.Ledger.EditText(cmd.Context(), taskID, text); err != nil {
					return err
				}
			}
			if difficulty != "" {
				d := models.Difficulty(difficulty)
				if !d.Valid() {
					return apperrors.Wrapf(apperrors.ErrUnknownDifficulty, "%q (valid: %s)",
						difficulty, strings.Join(difficultyNames(), ", "))
				}
				if task, err = app.Ledger.EditDifficulty(cmd.Context(), taskID, d); err != nil {
					return err
				}
			}
			if date != "" {
				if !utils.ValidDate(date) {
					return apperrors.Wrapf(apperrors.ErrInputValidation, "invalid date %q, want YYYY-MM-DD", date)
				}
				if task, err = app.Ledger.EditDueDate(cmd.Context(), taskID, date); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(task)
			}
			output.Success("Updated task %s", task.ID)
			output.Printf("  %s (%s, due %s)\n", task.Text, task.Difficulty, task.DueDate)
			output.Dim("  potential impact: +%s (%.1f%%)", utils.FormatMoney(task.PriceChange), task.Percentage)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "new task text")
	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", "", "new difficulty (easy|medium|hard|extreme)")
	cmd.Flags().StringVar(&date, "date", "", "new due date YYYY-MM-DD")
	return cmd
}

func difficultyNames() []string {
	names := make([]string, 0, len(models.Difficulties))
	for _, d := range models.Difficulties {
		names = append(names, string(d))
	}
	return names
}
