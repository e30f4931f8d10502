package htpasswd

import (
	"errors"
	"fmt"
	"os"

	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

// Offline credential file management. The server itself never writes the
// file; edits take effect at server restart.
func Entrypoint() *cobra.Command {
	file := ".htpasswd"

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the credential file",
	}

	cmd.PersistentFlags().StringVarP(&file, "file", "f", file, "Credential file location")

	cmd.AddCommand(&cobra.Command{
		Use:   "add [username] [password]",
		Short: "Adds a user (fails if the user exists)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				store, err := loadOrEmpty(file)
				if err != nil {
					return err
				}

				if err := store.Create(args[0], args[1]); err != nil {
					return err
				}

				return store.Save()
			}())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update [username] [password]",
		Short: "Sets a user's password unconditionally",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				store, err := loadOrEmpty(file)
				if err != nil {
					return err
				}

				if err := store.Update(args[0], args[1]); err != nil {
					return err
				}

				return store.Save()
			}())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [username]",
		Short: "Removes a user",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				store, err := Load(file)
				if err != nil {
					return err
				}

				if _, exists := store.users[args[0]]; !exists {
					return errors.New("no such user")
				}

				store.Delete(args[0])

				return store.Save()
			}())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "Lists usernames",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				store, err := Load(file)
				if err != nil {
					return err
				}

				for _, username := range store.Usernames() {
					fmt.Println(username)
				}

				return nil
			}())
		},
	})

	return cmd
}

func loadOrEmpty(path string) (*Store, error) {
	store, err := Load(path)
	if os.IsNotExist(err) {
		return Empty(path), nil
	}

	return store, err
}
