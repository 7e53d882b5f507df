package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// KnowledgeItem is one knowledge record in list/get responses.
type KnowledgeItem struct {
	KnowledgeID    string `json:"knowledge_id"`
	SpaceID        string `json:"space_id"`
	ParentID       string `json:"parent_id,omitempty"`
	Name           string `json:"name"`
	SourceType     string `json:"source_type"`
	Type           string `json:"type"`
	FileSHA        string `json:"file_sha"`
	FileSize       int64  `json:"file_size"`
	Enabled        bool   `json:"enabled"`
	RetrievalCount int64  `json:"retrieval_count"`
	CreatedAt      string `json:"created_at"`
}

// ListResponse is the paginated knowledge list response.
type ListResponse struct {
	Items    []KnowledgeItem `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	var (
		page       int
		pageSize   int
		sourceType string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge in the current space",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runList(page, pageSize, sourceType, outputJSON)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Items per page")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Filter by source type")

	return cmd
}

func runList(page, pageSize int, sourceType string, outputJSON bool) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("eq.space_id", config.SpaceID)
	if sourceType != "" {
		query.Set("eq.source_type", sourceType)
	}

	resp, err := api.Get("/knowledge?" + query.Encode())
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	var listResp ListResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse list response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(listResp.Items) == 0 {
		fmt.Println("No knowledge found.")
		return nil
	}

	fmt.Printf("Knowledge (page %d, %d total):\n", listResp.Page, listResp.Total)
	for _, item := range listResp.Items {
		status := "enabled"
		if !item.Enabled {
			status = "disabled"
		}
		fmt.Printf("  %s: %s [%s/%s, %s, %d bytes, %d retrievals]\n",
			item.KnowledgeID, item.Name, item.SourceType, item.Type, status, item.FileSize, item.RetrievalCount)
	}

	return nil
}
