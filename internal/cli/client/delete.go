package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <knowledge-id> [knowledge-id...]",
		Short: "Delete knowledge items",
		Long:  "Deletes knowledge items and their chunks. Children of a container are deleted with it.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDelete(args, force, outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func runDelete(knowledgeIDs []string, force, outputJSON bool) error {
	if !force {
		fmt.Printf("Delete %d knowledge item(s)? This cannot be undone. [y/N]: ", len(knowledgeIDs))
		reader := bufio.NewReader(os.Stdin)
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if answer := strings.ToLower(strings.TrimSpace(input)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	_, err = api.Post("/knowledge/delete", map[string][]string{"knowledge_ids": knowledgeIDs})
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(map[string]interface{}{
			"deleted": knowledgeIDs,
		}, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Deleted %d knowledge item(s)\n", len(knowledgeIDs))
	}

	return nil
}
