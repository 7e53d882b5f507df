package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/burrow-ai/burrow/internal/config"
	"github.com/burrow-ai/burrow/internal/database"
	"github.com/burrow-ai/burrow/internal/repository"
	"github.com/burrow-ai/burrow/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func TenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
		Long:  "Create and list tenants",
	}

	cmd.AddCommand(TenantCreateCmd())
	cmd.AddCommand(TenantListCmd())

	return cmd
}

func TenantCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new tenant",
		Long:  "Create a new tenant with the specified name",
		Args:  cobra.ExactArgs(1),
		RunE:  runTenantCreate,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, nil, uuidGen)

	tenant, err := authSvc.CreateTenant(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"tenant_id":  tenant.TenantID,
			"name":       tenant.Name,
			"created_at": tenant.CreatedAt,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Tenant created: %s (%s)\n", tenant.Name, tenant.TenantID)
	}

	return nil
}

func TenantListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		Long:  "List all tenants in the system",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runTenantList(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runTenantList(outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)

	tenants, err := tenantRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(tenants))
		for i, tenant := range tenants {
			data[i] = map[string]interface{}{
				"tenant_id":  tenant.TenantID,
				"name":       tenant.Name,
				"created_at": tenant.CreatedAt,
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(tenants) == 0 {
			fmt.Println("No tenants found")
			return nil
		}
		fmt.Println("Tenants:")
		for _, tenant := range tenants {
			fmt.Printf("  %s: %s (created: %s)\n", tenant.TenantID, tenant.Name, tenant.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}
