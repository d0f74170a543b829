// Command chatcli is the interactive-free CLI front-end to the chat
// cluster's client RPC surface: one subcommand per operation, a
// `--server` flag accepting a comma-separated address list for failover.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-labs/chatcluster/internal/client"
)

var (
	serverFlag  string
	timeoutFlag time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "chatcli",
		Short: "Command-line client for the chat cluster",
	}
	root.PersistentFlags().StringVar(&serverFlag, "server", "localhost:8080", "comma-separated list of client addresses")
	root.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 5*time.Second, "per-request timeout")

	root.AddCommand(
		createAccountCmd(),
		loginCmd(),
		logoutCmd(),
		sendCmd(),
		listUsersCmd(),
		getMessagesCmd(),
		getChatCmd(),
		getUnreadCountsCmd(),
		deleteMessagesCmd(),
		deleteAccountCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	addrs := strings.Split(serverFlag, ",")
	return client.New(addrs, timeoutFlag)
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}

func createAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-account <username> <password>",
		Args:  cobra.ExactArgs(2),
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			if err := newClient().CreateAccount(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("account created")
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Args:  cobra.ExactArgs(2),
		Short: "Log in and print a confirmation (the session id is neither printed nor kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			c := newClient()
			if err := c.Login(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("logged in")
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out of the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			return newClient().Logout(ctx)
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <to> <message>",
		Args:  cobra.ExactArgs(2),
		Short: "Send a message to another user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			return newClient().Send(ctx, args[0], args[1])
		},
	}
}

func listUsersCmd() *cobra.Command {
	var wildcard string
	cmd := &cobra.Command{
		Use:   "list-users",
		Short: "List users matching a wildcard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			users, err := newClient().ListUsers(ctx, wildcard)
			if err != nil {
				return err
			}
			prettyPrint(users)
			return nil
		},
	}
	cmd.Flags().StringVar(&wildcard, "wildcard", "", "username glob (defaults to everyone)")
	return cmd
}

func getMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-messages",
		Short: "Fetch and mark-received pending messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			msgs, err := newClient().GetMessages(ctx)
			if err != nil {
				return err
			}
			prettyPrint(msgs)
			return nil
		},
	}
}

func getChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-chat <username>",
		Args:  cobra.ExactArgs(1),
		Short: "Fetch the full chat history with another user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			msgs, err := newClient().GetChat(ctx, args[0])
			if err != nil {
				return err
			}
			prettyPrint(msgs)
			return nil
		},
	}
}

func getUnreadCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-unread-counts",
		Short: "Show unread message counts by sender",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			counts, err := newClient().GetUnreadCounts(ctx)
			if err != nil {
				return err
			}
			prettyPrint(counts)
			return nil
		},
	}
}

func deleteMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-messages <id> [id...]",
		Args:  cobra.MinimumNArgs(1),
		Short: "Delete one or more messages by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid message id %q: %w", a, err)
				}
				ids = append(ids, id)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			return newClient().DeleteMessages(ctx, ids)
		},
	}
}

func deleteAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the logged-in user's own account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			return newClient().DeleteAccount(ctx)
		},
	}
}
