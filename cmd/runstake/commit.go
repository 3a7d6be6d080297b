package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/runstake/internal/fairness"
)

var commitCmd = &cobra.Command{
	Use:   "commit [secret commitment]",
	Short: "Generate or check a secret/commitment pair",
	Long: `Without arguments, generate a fresh secret and print it with its
commitment. With a secret and a commitment, check that they match.

Examples:
  runstake commit
  runstake commit 9b1e...  4c0d...`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or a secret and a commitment")
		}
		return nil
	},
	RunE: runCommit,
}

func runCommit(_ *cobra.Command, args []string) error {
	if len(args) == 2 {
		if !fairness.VerifyReveal(args[0], args[1]) {
			return fmt.Errorf("secret does not match commitment")
		}
		fmt.Println("OK: secret matches commitment")
		return nil
	}

	pair, err := fairness.NewPair()
	if err != nil {
		return err
	}
	fmt.Printf("Secret      %s\n", pair.Secret)
	fmt.Printf("Commitment  %s\n", pair.Commitment)
	return nil
}
