package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a first-aid question from the stored fiches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		category, _ := cmd.Flags().GetString("category")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			answer, err := a.assistant.Ask(ctx, question, category)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(answer)
			}

			if answer.Empty {
				fmt.Println(answer.Answer)
				return nil
			}
			if answer.Generated {
				fmt.Println(answer.Answer)
				fmt.Println()
				fmt.Println("Fiches consultées :")
			} else {
				fmt.Println("Aucun modèle de génération configuré, fiches pertinentes :")
				fmt.Println()
			}
			for i, v := range answer.Fiches {
				printView(i+1, v, !answer.Generated)
			}
			return nil
		})
	},
}

func init() {
	askCmd.Flags().String("category", "", "restrict to sources whose name contains this value")
	rootCmd.AddCommand(askCmd)
}
