package main

import (
	"fmt"
	"strconv"

	"github.com/groupwarden/warden/moderation/roster"
	"github.com/groupwarden/warden/util"

	cli "github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func openRoster(cctx *cli.Context) (*roster.Store, *gorm.DB, error) {
	db, err := util.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return nil, nil, err
	}
	store, err := roster.NewStore(db)
	if err != nil {
		return nil, nil, err
	}
	return store, db, nil
}

var adminCmd = &cli.Command{
	Name:  "admin",
	Usage: "manage service admins",
	Subcommands: []*cli.Command{
		{
			Name:      "add",
			Usage:     "grant service admin rights to a user",
			ArgsUsage: "<user-id>",
			Action: func(cctx *cli.Context) error {
				userID, err := parseIDArg(cctx, 0)
				if err != nil {
					return err
				}
				store, _, err := openRoster(cctx)
				if err != nil {
					return err
				}
				if err := store.AddAdmin(cctx.Context, userID); err != nil {
					return err
				}
				fmt.Printf("added admin %d\n", userID)
				return nil
			},
		},
		{
			Name:      "remove",
			Usage:     "revoke service admin rights, including group assignments",
			ArgsUsage: "<user-id>",
			Action: func(cctx *cli.Context) error {
				userID, err := parseIDArg(cctx, 0)
				if err != nil {
					return err
				}
				store, _, err := openRoster(cctx)
				if err != nil {
					return err
				}
				if err := store.RemoveAdmin(cctx.Context, userID); err != nil {
					return err
				}
				fmt.Printf("removed admin %d\n", userID)
				return nil
			},
		},
		{
			Name:  "list",
			Usage: "list service admins and their group assignments",
			Action: func(cctx *cli.Context) error {
				store, _, err := openRoster(cctx)
				if err != nil {
					return err
				}
				admins, err := store.ListAdmins(cctx.Context)
				if err != nil {
					return err
				}
				for _, adminID := range admins {
					groups, err := store.GroupsForAdmin(cctx.Context, adminID)
					if err != nil {
						return err
					}
					fmt.Printf("%d\tgroups=%v\n", adminID, groups)
				}
				return nil
			},
		},
	},
}

var groupCmd = &cli.Command{
	Name:  "group",
	Usage: "manage watched groups",
	Subcommands: []*cli.Command{
		{
			Name:      "set-antilink",
			Usage:     "toggle link enforcement for a group",
			ArgsUsage: "<group-id> <on|off>",
			Action: func(cctx *cli.Context) error {
				groupID, err := parseIDArg(cctx, 0)
				if err != nil {
					return err
				}
				var enabled bool
				switch cctx.Args().Get(1) {
				case "on":
					enabled = true
				case "off":
					enabled = false
				default:
					return fmt.Errorf("expected 'on' or 'off', got %q", cctx.Args().Get(1))
				}
				store, _, err := openRoster(cctx)
				if err != nil {
					return err
				}
				if err := store.SetAntiLink(cctx.Context, groupID, enabled); err != nil {
					return err
				}
				fmt.Printf("group %d anti-link: %v\n", groupID, enabled)
				return nil
			},
		},
		{
			Name:      "assign",
			Usage:     "assign a service admin to a group",
			ArgsUsage: "<admin-id> <group-id>",
			Action: func(cctx *cli.Context) error {
				adminID, err := parseIDArg(cctx, 0)
				if err != nil {
					return err
				}
				groupID, err := parseIDArg(cctx, 1)
				if err != nil {
					return err
				}
				store, _, err := openRoster(cctx)
				if err != nil {
					return err
				}
				if err := store.AssignGroup(cctx.Context, adminID, groupID); err != nil {
					return err
				}
				fmt.Printf("assigned admin %d to group %d\n", adminID, groupID)
				return nil
			},
		},
	},
}

func parseIDArg(cctx *cli.Context, n int) (int64, error) {
	raw := cctx.Args().Get(n)
	if raw == "" {
		return 0, fmt.Errorf("missing required argument")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q: %w", raw, err)
	}
	return id, nil
}
