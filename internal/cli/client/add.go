package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// SubmitItem is one knowledge item in a submit request.
type SubmitItem struct {
	SpaceID      string          `json:"space_id"`
	Name         string          `json:"name"`
	SourceType   string          `json:"source_type"`
	Type         string          `json:"type"`
	SourceConfig json.RawMessage `json:"source_config"`
}

// SubmitRequest is the body for POST /knowledge.
type SubmitRequest struct {
	Items []SubmitItem `json:"items"`
}

// SubmitResult is one entry in the submit response.
type SubmitResult struct {
	Knowledge struct {
		KnowledgeID string `json:"knowledge_id"`
		Name        string `json:"name"`
		FileSHA     string `json:"file_sha"`
	} `json:"knowledge"`
	Task *struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	} `json:"task,omitempty"`
	Duplicate bool `json:"duplicate"`
}

// AddCmd creates the add command.
func AddCmd() *cobra.Command {
	var (
		file     string
		name     string
		repo     string
		branch   string
		s3Bucket string
		s3Key    string
	)

	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add knowledge",
		Long: `Adds knowledge to the current space and starts ingestion.

Content can be inline text, a local file (--file), a GitHub repository
(--repo), or an S3 object (--s3-bucket/--s3-key).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			var text string
			if len(args) > 0 {
				text = args[0]
			}
			return runAdd(text, file, name, repo, branch, s3Bucket, s3Key, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from a local file")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Knowledge name (defaults to file name or a snippet)")
	cmd.Flags().StringVar(&repo, "repo", "", "GitHub repository (owner/name) to ingest")
	cmd.Flags().StringVar(&branch, "branch", "", "GitHub branch (defaults to the repository default)")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket of the object to ingest")
	cmd.Flags().StringVar(&s3Key, "s3-key", "", "S3 key of the object to ingest")

	return cmd
}

func runAdd(text, file, name, repo, branch, s3Bucket, s3Key string, outputJSON bool) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	item, err := buildSubmitItem(config.SpaceID, text, file, name, repo, branch, s3Bucket, s3Key)
	if err != nil {
		return err
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Post("/knowledge", SubmitRequest{Items: []SubmitItem{item}})
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	var results []SubmitResult
	if err := json.Unmarshal(resp.Data, &results); err != nil {
		return fmt.Errorf("failed to parse submit response: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("empty submit response")
	}
	result := results[0]

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if result.Duplicate {
		fmt.Printf("Already saved: %s (%s)\n", result.Knowledge.Name, result.Knowledge.KnowledgeID)
		return nil
	}

	fmt.Printf("Added: %s (%s)\n", result.Knowledge.Name, result.Knowledge.KnowledgeID)
	if result.Task != nil {
		fmt.Printf("Task %s is %s. Track it with 'burrow task get %s'\n", result.Task.TaskID, result.Task.Status, result.Task.TaskID)
	}
	return nil
}

func buildSubmitItem(spaceID, text, file, name, repo, branch, s3Bucket, s3Key string) (SubmitItem, error) {
	switch {
	case repo != "":
		cfg, _ := json.Marshal(map[string]string{"repo_name": repo, "branch": branch})
		if name == "" {
			name = repo
		}
		return SubmitItem{
			SpaceID:      spaceID,
			Name:         name,
			SourceType:   "github_repo",
			Type:         "folder",
			SourceConfig: cfg,
		}, nil

	case s3Bucket != "" || s3Key != "":
		if s3Bucket == "" || s3Key == "" {
			return SubmitItem{}, fmt.Errorf("both --s3-bucket and --s3-key are required")
		}
		cfg, _ := json.Marshal(map[string]string{"bucket": s3Bucket, "key": s3Key})
		if name == "" {
			name = s3Key
		}
		return SubmitItem{
			SpaceID:      spaceID,
			Name:         name,
			SourceType:   "s3_object",
			Type:         knowledgeTypeForName(s3Key),
			SourceConfig: cfg,
		}, nil

	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return SubmitItem{}, fmt.Errorf("failed to read file: %w", err)
		}
		cfg, _ := json.Marshal(map[string]string{"text": string(data)})
		if name == "" {
			name = filepath.Base(file)
		}
		return SubmitItem{
			SpaceID:      spaceID,
			Name:         name,
			SourceType:   "user_input_text",
			Type:         knowledgeTypeForName(file),
			SourceConfig: cfg,
		}, nil

	case text != "":
		cfg, _ := json.Marshal(map[string]string{"text": text})
		if name == "" {
			name = snippetName(text)
		}
		return SubmitItem{
			SpaceID:      spaceID,
			Name:         name,
			SourceType:   "user_input_text",
			Type:         "text",
			SourceConfig: cfg,
		}, nil

	default:
		return SubmitItem{}, fmt.Errorf("nothing to add: pass inline text or one of --file, --repo, --s3-bucket/--s3-key")
	}
}

func knowledgeTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return "markdown"
	default:
		return "text"
	}
}

func snippetName(text string) string {
	snippet := strings.TrimSpace(text)
	if idx := strings.IndexByte(snippet, '\n'); idx >= 0 {
		snippet = snippet[:idx]
	}
	if len(snippet) > 60 {
		snippet = snippet[:57] + "..."
	}
	return snippet
}
