package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/utils"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed API token for a recruiter (uses jwt-key from config)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		flags := cmd.Flags()
		user := utils.LoginUser{}
		user.ID, _ = flags.GetString("id")
		user.Username, _ = flags.GetString("name")
		user.Code, _ = flags.GetString("code")
		role, _ := flags.GetString("role")
		user.Role = strings.ToUpper(role)
		ttl, _ := flags.GetDuration("ttl")

		switch models.UserRole(user.Role) {
		case models.UserRoleSUPER_ADMIN, models.UserRoleTEAM_LEAD, models.UserRoleRECRUITER, models.UserRoleVIEWER:
		default:
			return fmt.Errorf("unknown role %q", role)
		}
		if user.Username == "" {
			user.Username = user.ID
		}

		token, err := utils.GenerateToken(user, ttl)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("id", "", "user id")
	tokenCmd.Flags().String("name", "", "user name")
	tokenCmd.Flags().String("code", "", "author code written into feedback entries")
	tokenCmd.Flags().String("role", string(models.UserRoleRECRUITER), "SUPER_ADMIN, TEAM_LEAD, RECRUITER or VIEWER")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("id")
}
