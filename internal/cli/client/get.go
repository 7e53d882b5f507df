package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <knowledge-id>",
		Short: "Show a knowledge item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runGet(args[0], outputJSON)
		},
	}

	return cmd
}

func runGet(knowledgeID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get("/knowledge/" + knowledgeID)
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}

	var item KnowledgeItem
	if err := json.Unmarshal(resp.Data, &item); err != nil {
		return fmt.Errorf("failed to parse knowledge: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(item, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("ID:              %s\n", item.KnowledgeID)
	fmt.Printf("Name:            %s\n", item.Name)
	fmt.Printf("Space:           %s\n", item.SpaceID)
	if item.ParentID != "" {
		fmt.Printf("Parent:          %s\n", item.ParentID)
	}
	fmt.Printf("Source type:     %s\n", item.SourceType)
	fmt.Printf("Type:            %s\n", item.Type)
	fmt.Printf("SHA:             %s\n", item.FileSHA)
	fmt.Printf("Size:            %d bytes\n", item.FileSize)
	fmt.Printf("Enabled:         %t\n", item.Enabled)
	fmt.Printf("Retrievals:      %d\n", item.RetrievalCount)
	fmt.Printf("Created:         %s\n", item.CreatedAt)

	return nil
}
