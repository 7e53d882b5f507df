package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SearchRequest represents the search API request.
type SearchRequest struct {
	SpaceID  string `json:"space_id"`
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// SearchResult represents one retrieved chunk.
type SearchResult struct {
	ChunkID     string  `json:"chunk_id"`
	KnowledgeID string  `json:"knowledge_id"`
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Chunks []SearchResult `json:"chunks"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Search knowledge",
		Long:  "Searches the knowledge base using semantic search.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(args[0], topK, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Maximum number of chunks to return")

	return cmd
}

func runSearch(question string, topK int, outputJSON bool) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := SearchRequest{
		SpaceID:  config.SpaceID,
		Question: question,
		TopK:     topK,
	}

	resp, err := api.Post("/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(resp.Data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(searchResp.Chunks) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d chunks:\n\n", len(searchResp.Chunks))
	for i, chunk := range searchResp.Chunks {
		fmt.Printf("%d. score %.3f (knowledge %s)\n", i+1, chunk.Score, chunk.KnowledgeID)
		content := strings.TrimSpace(chunk.Content)
		if len(content) > 200 {
			content = content[:197] + "..."
		}
		fmt.Printf("   %s\n", content)
		if i < len(searchResp.Chunks)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	return nil
}
