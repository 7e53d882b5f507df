package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/repository"
	"github.com/burrow-ai/burrow/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func resolveTenantID(ctx context.Context, tenantRepo *repository.TenantRepository, tenantRef string) (string, error) {
	if _, err := uuid.Parse(tenantRef); err == nil {
		tenant, err := tenantRepo.GetByID(ctx, tenantRef)
		if err != nil {
			return "", fmt.Errorf("tenant not found: %s", tenantRef)
		}
		return tenant.TenantID, nil
	}

	tenant, err := tenantRepo.GetByName(ctx, tenantRef)
	if err != nil {
		if err == domain.ErrTenantNotFound {
			return "", fmt.Errorf("tenant not found: %s", tenantRef)
		}
		return "", err
	}
	return tenant.TenantID, nil
}

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list, and revoke API keys",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Create a new API key for a tenant",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("name", "n", "", "API key name (required)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenantRef, _ := cmd.Flags().GetString("tenant")
	name, _ := cmd.Flags().GetString("name")
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, apiKeyRepo, uuidGen)

	tenantID, err := resolveTenantID(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

	plaintext, err := authSvc.CreateAPIKey(ctx, tenantID, name)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	keys, err := authSvc.ListAPIKeys(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to retrieve created key: %w", err)
	}

	var keyID string
	if len(keys) > 0 {
		keyID = keys[len(keys)-1].ID
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":     keyID,
			"name":   name,
			"tenant": tenantID,
			"token":  plaintext,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("API key created for tenant %s\n", tenantID)
		fmt.Printf("Key ID: %s\n", keyID)
		fmt.Printf("Key Name: %s\n", name)
		fmt.Printf("Token: %s\n", plaintext)
		fmt.Println("\n⚠️  Save this token now. You won't be able to see it again!")
	}

	return nil
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for a tenant",
		Long:  "List all API keys for a specific tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantRef, _ := cmd.Flags().GetString("tenant")
			outputFormat, _ := cmd.Flags().GetString("output")
			return runAPIKeyList(tenantRef, outputFormat)
		},
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runAPIKeyList(tenantRef, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)

	tenantID, err := resolveTenantID(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

	keys, err := apiKeyRepo.GetByTenantID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(keys))
		for i, key := range keys {
			data[i] = map[string]interface{}{
				"id":         key.ID,
				"name":       key.Name,
				"tenant_id":  key.TenantID,
				"created_at": key.CreatedAt,
				"revoked_at": key.RevokedAt,
				"revoked":    key.IsRevoked(),
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(keys) == 0 {
			fmt.Printf("No API keys found for tenant %s\n", tenantID)
			return nil
		}
		fmt.Printf("API keys for tenant %s:\n", tenantID)
		for _, key := range keys {
			status := "active"
			if key.IsRevoked() {
				status = "revoked"
			}
			fmt.Printf("  %s: %s (%s, created: %s)\n", key.ID, key.Name, status, key.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return nil
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Long:  "Revoke an API key by its ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	}

	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	keyID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	if err := apiKeyRepo.Revoke(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":      keyID,
			"revoked": true,
			"message": "API key revoked successfully",
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("API key %s revoked\n", keyID)
	}

	return nil
}
