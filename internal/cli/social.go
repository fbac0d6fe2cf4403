package cli

import (
	"sort"

	"github.com/spf13/cobra"

	apperrors "habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/pkg/utils"
)

func (app *App) requireSocial() error {
	if app.Social == nil {
		return apperrors.Wrap(apperrors.ErrDatabaseError, "store unavailable, check database path and permissions")
	}
	return nil
}

func newFollowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <user-id>",
		Short: "Follow another user's stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSocial(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			if err := app.Social.Follow(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"following": args[0]})
			}
			output.Success("Following %s", args[0])
			return nil
		},
	}
}

func newUnfollowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unfollow <user-id>",
		Short: "Stop following a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSocial(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			if err := app.Social.Unfollow(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"unfollowed": args[0]})
			}
			output.Success("Unfollowed %s", args[0])
			return nil
		},
	}
}

func newFriendsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "friends",
		Short: "List followed users and their latest prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSocial(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			if err := app.Social.Refresh(cmd.Context()); err != nil {
				return err
			}
			friends, err := app.Social.Following(cmd.Context())
			if err != nil {
				return err
			}
			if len(friends) == 0 {
				if output.IsJSON() {
					return output.JSON([]string{})
				}
				output.Dim("Not following anyone.")
				return nil
			}
			sort.Strings(friends)

			if output.IsJSON() {
				return output.JSON(friends)
			}

			table := NewTable(output, "USER", "PRICE", "CHANGE", "LAST DAY")
			for _, id := range friends {
				stock, err := app.Social.FriendBars(id)
				if err != nil {
					table.AddRow(id, "-", "-", "-")
					continue
				}
				date, bar, ok := latestBar(stock)
				if !ok {
					table.AddRow(id, "-", "-", "-")
					continue
				}
				table.AddRow(id, utils.FormatMoney(bar.Close), output.FormatChange(bar.ChangePrice), date)
			}
			table.Render()
			output.Dim("refreshed %s", app.Social.LastRefreshed().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func latestBar(stock models.FriendStock) (string, models.StockBar, bool) {
	var latest string
	for d := range stock.Bars {
		if d > latest {
			latest = d
		}
	}
	if latest == "" {
		return "", models.StockBar{}, false
	}
	return latest, stock.Bars[latest], true
}
