package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/openchami/realmgate/pkg/gateway"
	"github.com/spf13/cobra"
)

var (
	gatewayURL    string
	loginUser     string
	passwordStdin bool
	printToken    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through a running gateway and show the resulting identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("REALMGATE_LOGIN_PASSWORD")
		if passwordStdin {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password from stdin: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if loginUser == "" || password == "" {
			return fmt.Errorf("--username and a password (--password-stdin or REALMGATE_LOGIN_PASSWORD) are required")
		}

		client := gateway.NewClient(gatewayURL)
		login, err := client.Login(cmd.Context(), loginUser, password)
		if err != nil {
			return err
		}
		me, err := client.Me(cmd.Context(), login.AccessToken)
		if err != nil {
			return err
		}

		fmt.Printf("Subject:     %s\n", me.Subject)
		fmt.Printf("Username:    %s\n", me.Username)
		fmt.Printf("Roles:       %s\n", strings.Join(me.Roles, ", "))
		fmt.Printf("Permissions: %s\n", strings.Join(me.Permissions, ", "))
		if printToken {
			fmt.Println(login.AccessToken)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&gatewayURL, "gateway", "http://localhost:8080", "Gateway base URL")
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "Username")
	loginCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	loginCmd.Flags().BoolVar(&printToken, "print-token", false, "Print the access token after the identity")
	rootCmd.AddCommand(loginCmd)
}
