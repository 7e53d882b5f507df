package loader

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/burrow-ai/burrow/internal/domain"
)

const githubRequestTimeout = 30 * time.Second

// GithubSourceConfig is the source descriptor for github_repo and github_file
// knowledge. RepoName is "owner/repo"; Path is set on file items only.
type GithubSourceConfig struct {
	RepoName        string   `json:"repo_name"`
	Branch          string   `json:"branch,omitempty"`
	Path            string   `json:"path,omitempty"`
	IncludeSuffixes []string `json:"include_suffixes,omitempty"`
}

// GithubLoader lists the file tree of a repository into per-file knowledge
// items and loads individual file contents. A repository item (folder type)
// is a container: it is decomposed, never embedded directly.
type GithubLoader struct {
	client *gh.Client
}

// NewGithubLoader creates a GithubLoader. An empty token falls back to
// unauthenticated access with GitHub's lower rate limits.
func NewGithubLoader(ctx context.Context, token string) *GithubLoader {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = githubRequestTimeout

	return &GithubLoader{client: gh.NewClient(httpClient)}
}

// ListItems discovers the repository's current files as knowledge items keyed
// by their git blob SHA, ready for reconciliation against the persisted set.
func (l *GithubLoader) ListItems(ctx context.Context, k *domain.Knowledge) ([]*domain.Knowledge, error) {
	cfg, owner, repo, err := l.parseConfig(k)
	if err != nil {
		return nil, err
	}

	ref := cfg.Branch
	if ref == "" {
		repository, _, err := l.client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default branch for %s: %w", cfg.RepoName, err)
		}
		ref = repository.GetDefaultBranch()
	}

	tree, _, err := l.client.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository tree for %s: %w", cfg.RepoName, err)
	}

	suffixes := cfg.IncludeSuffixes
	if len(suffixes) == 0 {
		suffixes = []string{".md", ".mdx"}
	}

	now := time.Now().UTC()
	var items []*domain.Knowledge
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" || !hasAnySuffix(entry.GetPath(), suffixes) {
			continue
		}

		fileCfg, err := json.Marshal(GithubSourceConfig{
			RepoName: cfg.RepoName,
			Branch:   cfg.Branch,
			Path:     entry.GetPath(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode file source config: %w", err)
		}

		item := domain.NewKnowledge(
			"", // identity assigned by the persistence gateway on insert
			k.TenantID,
			k.SpaceID,
			fmt.Sprintf("%s/%s", cfg.RepoName, entry.GetPath()),
			domain.SourceTypeGithubFile,
			domain.KnowledgeTypeMarkdown,
			fileCfg,
			entry.GetSHA(),
			int64(entry.GetSize()),
			now,
		)
		item.ParentID = k.KnowledgeID
		item.EmbeddingModel = k.EmbeddingModel
		items = append(items, item)
	}

	return items, nil
}

// Load fetches one file's content for a github_file knowledge item.
func (l *GithubLoader) Load(ctx context.Context, k *domain.Knowledge) ([]*domain.Document, error) {
	cfg, owner, repo, err := l.parseConfig(k)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("github file source for knowledge %s has no path", k.KnowledgeID)
	}

	opts := &gh.RepositoryContentGetOptions{Ref: cfg.Branch}
	content, _, _, err := l.client.Repositories.GetContents(ctx, owner, repo, cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from %s: %w", cfg.Path, cfg.RepoName, err)
	}
	if content == nil {
		return nil, fmt.Errorf("%s in %s is not a file", cfg.Path, cfg.RepoName)
	}

	text, err := decodeContent(content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s from %s: %w", cfg.Path, cfg.RepoName, err)
	}

	return []*domain.Document{
		{
			Content: text,
			Metadata: map[string]string{
				"repo_name": cfg.RepoName,
				"path":      cfg.Path,
				"sha":       k.FileSHA,
			},
		},
	}, nil
}

func (l *GithubLoader) parseConfig(k *domain.Knowledge) (*GithubSourceConfig, string, string, error) {
	var cfg GithubSourceConfig
	if err := json.Unmarshal(k.SourceConfig, &cfg); err != nil {
		return nil, "", "", fmt.Errorf("failed to parse github source config: %w", err)
	}

	owner, repo, ok := strings.Cut(cfg.RepoName, "/")
	if !ok || owner == "" || repo == "" {
		return nil, "", "", fmt.Errorf("invalid repo_name %q (expected owner/repo)", cfg.RepoName)
	}

	return &cfg, owner, repo, nil
}

func decodeContent(content *gh.RepositoryContent) (string, error) {
	if content.GetEncoding() == "base64" && content.Content != nil {
		raw, err := base64.StdEncoding.DecodeString(*content.Content)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return content.GetContent()
}

func hasAnySuffix(path string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}
