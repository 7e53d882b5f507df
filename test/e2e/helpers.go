//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/burrow-ai/burrow/internal/api/handlers"
	"github.com/burrow-ai/burrow/internal/counter"
	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/embed"
	"github.com/burrow-ai/burrow/internal/ingest"
	"github.com/burrow-ai/burrow/internal/loader"
	"github.com/burrow-ai/burrow/internal/repository"
	"github.com/burrow-ai/burrow/internal/server"
	"github.com/burrow-ai/burrow/internal/service"
	"github.com/burrow-ai/burrow/internal/storage"
	"github.com/burrow-ai/burrow/internal/testutil"
)

const testBucket = "burrow-sources"

// E2ETestEnv holds the full test environment
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	BinaryDir    string
	TenantID     string
	APIKeyToken  string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates containers, runs migrations, starts the server, and
// bootstraps a tenant with an API key.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pgC.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")
	t.Cleanup(pool.Close)

	rustfsC := testutil.NewRustFSContainer(ctx, t)
	t.Cleanup(func() { rustfsC.Terminate(ctx) })

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        rustfsC.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to ensure bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, closer := startServer(t, pool, rustfsC.Endpoint(), port)
	t.Cleanup(closer)

	env := &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      rustfsC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: closer,
		S3Client:     s3Client,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
	env.Bootstrap()
	return env
}

// Bootstrap creates a tenant and API key for testing
func (e *E2ETestEnv) Bootstrap() {
	tenantResp, err := e.Post("/tenants", map[string]string{"name": "E2E Test Tenant"}, "")
	if err != nil {
		e.T.Fatalf("failed to create tenant: %v", err)
	}

	var tenantData struct {
		TenantID string `json:"tenant_id"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(tenantResp.Data, &tenantData); err != nil {
		e.T.Fatalf("failed to parse tenant response: %v", err)
	}
	e.TenantID = tenantData.TenantID

	keyResp, err := e.Post("/apikeys", map[string]string{
		"tenant_id": e.TenantID,
		"name":      "e2e-test-key",
	}, "")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}

	var keyData struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(keyResp.Data, &keyData); err != nil {
		e.T.Fatalf("failed to parse key response: %v", err)
	}
	e.APIKeyToken = keyData.Token
}

// SeedObject writes an object into the test bucket for the s3_object loader.
func (e *E2ETestEnv) SeedObject(key string, content []byte, contentType string) {
	if err := e.S3Client.PutObject(e.Ctx, key, content, contentType); err != nil {
		e.T.Fatalf("failed to seed object %s: %v", key, err)
	}
}

// WaitForTask polls the task until it reaches the wanted status. Any other
// terminal status fails the test.
func (e *E2ETestEnv) WaitForTask(taskID string, want string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	var last string
	for time.Now().Before(deadline) {
		resp, err := e.Get("/tasks/"+taskID, e.APIKeyToken)
		if err != nil {
			e.T.Fatalf("failed to get task %s: %v", taskID, err)
		}

		var task struct {
			Status       string `json:"status"`
			ErrorMessage string `json:"error_message"`
		}
		if err := json.Unmarshal(resp.Data, &task); err != nil {
			e.T.Fatalf("failed to parse task response: %v", err)
		}

		if task.Status == want {
			return
		}
		last = task.Status
		if isTerminalStatus(task.Status) {
			e.T.Fatalf("task %s ended %s (want %s): %s", taskID, task.Status, want, task.ErrorMessage)
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("task %s did not reach %s within %v (last status %s)", taskID, want, timeout, last)
}

func isTerminalStatus(status string) bool {
	switch domain.TaskStatus(status) {
	case domain.TaskStatusSuccess, domain.TaskStatusFailed, domain.TaskStatusCanceled:
		return true
	}
	return false
}

// BuildBinaries builds the burrow and burrowd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "burrow-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "burrowd"), "./cmd/burrowd")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build burrowd: %v\n%s", err, out)
	}

	cmd = exec.Command("go", "build", "-o", filepath.Join(tmpDir, "burrow"), "./cmd/burrow")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build burrow: %v\n%s", err, out)
	}
}

// RunBurrow runs the burrow CLI command
func (e *E2ETestEnv) RunBurrow(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "burrow"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("BURROW_API_KEY=%s", e.APIKeyToken),
		fmt.Sprintf("BURROW_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunBurrowWithInput runs the burrow CLI command with stdin input
func (e *E2ETestEnv) RunBurrowWithInput(workDir string, input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "burrow"), args...)
	cmd.Dir = workDir
	cmd.Stdin = bytes.NewReader([]byte(input))
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("BURROW_API_KEY=%s", e.APIKeyToken),
		fmt.Sprintf("BURROW_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("PUT", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// SHA256Sum calculates SHA256 hash of data
func SHA256Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// startServer starts the HTTP server with the ingestion engine and counter
func startServer(t *testing.T, pool *pgxpool.Pool, s3Endpoint string, port int) (string, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	taskRepo := repository.NewTaskRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	gateway := repository.NewGateway(pool)

	embeddingClient := &fakeEmbeddingClient{}
	embedder := embed.NewEmbedder(embeddingClient)

	loaders := loader.NewRegistry()
	loaders.Register(domain.SourceTypeUserInputText, loader.NewTextLoader())
	s3Loader, err := loader.NewS3Loader(ctx, loader.S3ClientConfig{
		Endpoint:        s3Endpoint,
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		UsePathStyle:    true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to create S3 loader: %v", err)
	}
	loaders.Register(domain.SourceTypeS3Object, s3Loader)

	taskPool := ingest.NewTaskPool(64 << 20)
	executor := ingest.NewExecutor(taskPool, gateway, loaders, embedder, ingest.Config{
		Concurrency:     4,
		TaskTimeout:     30 * time.Second,
		TimeoutCooldown: time.Second,
		PollInterval:    100 * time.Millisecond,
	})
	go executor.Start(ctx)

	hitCounter := counter.New(gateway, counter.Config{
		Shards:        4,
		FlushInterval: 500 * time.Millisecond,
	})
	go hitCounter.Start(ctx)

	uuidGen := &service.DefaultUUIDGenerator{}
	knowledgeSvc := service.NewKnowledgeService(knowledgeRepo, taskRepo, executor)
	taskSvc := service.NewTaskService(taskRepo, executor)
	retrievalSvc := service.NewRetrievalService(chunkRepo, embeddingClient, hitCounter)
	authSvc := service.NewAuthService(tenantRepo, apiKeyRepo, uuidGen)

	cfg := server.RouterConfig{
		AuthValidator:    authSvc,
		KnowledgeHandler: handlers.NewKnowledgeHandler(knowledgeSvc),
		TaskHandler:      handlers.NewTaskHandler(taskSvc),
		RetrievalHandler: handlers.NewRetrievalHandler(retrievalSvc),
		AuthHandler:      handlers.NewAuthHandler(authSvc),
	}

	router := server.NewRouter(cfg)
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
		executor.Stop()
		hitCounter.Stop()
		cancel()
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// fakeEmbeddingClient produces deterministic bag-of-words embeddings so that
// texts sharing vocabulary score close under cosine distance. It stands in
// for the embedding provider, which is not reachable from CI.
type fakeEmbeddingClient struct{}

const fakeEmbeddingDim = 1536

func (f *fakeEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, fakeEmbeddingDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%fakeEmbeddingDim] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (f *fakeEmbeddingClient) ModelName() string {
	return "fake-bag-of-words"
}
