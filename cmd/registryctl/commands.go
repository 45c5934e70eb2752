package main

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/document-registry/internal/app"
	"github.com/bigkaa/goartstore/document-registry/internal/config"
	"github.com/bigkaa/goartstore/document-registry/internal/database"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции схемы PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.RegistryBackend != config.BackendPostgres {
				return fmt.Errorf("миграции применимы только к бэкенду postgres, текущий: %s", cfg.RegistryBackend)
			}
			return database.Migrate(cfg, logger)
		},
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Конфигурация тенантов",
	}

	var (
		name         string
		storagePath  string
		repositoryID string
		enabled      bool
		permissions  []string
	)
	setCmd := &cobra.Command{
		Use:   "set <tenantId>",
		Short: "Создать или изменить конфигурацию тенанта",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perms, err := parsePermissions(permissions)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				tenant, err := a.Tenants.Get(ctx, args[0])
				switch {
				case stderrors.Is(err, model.ErrTenantNotFound):
					tenant = &model.Tenant{ID: args[0]}
				case err != nil:
					return err
				}

				flags := cmd.Flags()
				if flags.Changed("name") {
					tenant.Name = name
				}
				if flags.Changed("storage-path") {
					tenant.StoragePath = storagePath
				}
				if flags.Changed("repository-id") {
					tenant.RepositoryUniqueID = repositoryID
				}
				if flags.Changed("enabled") {
					tenant.RegistryEnabled = enabled
				}
				if flags.Changed("permissions") {
					tenant.Permissions = perms
				}

				if err := a.Tenants.Upsert(ctx, tenant); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tenant)
			})
		},
	}
	setCmd.Flags().StringVar(&name, "name", "", "Название локации")
	setCmd.Flags().StringVar(&storagePath, "storage-path", "", "Корень хранилища тенанта")
	setCmd.Flags().StringVar(&repositoryID, "repository-id", "", "Идентификатор репозитория (OID)")
	setCmd.Flags().BoolVar(&enabled, "enabled", false, "Включить реестр документов")
	setCmd.Flags().StringArrayVar(&permissions, "permissions", nil, "Роли операции: op=role,role (можно повторять)")
	cmd.AddCommand(setCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Показать конфигурацию тенантов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				tenants, err := a.Tenants.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tenants)
			})
		},
	}
	cmd.AddCommand(listCmd)
	return cmd
}

func reconcileCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить хранилище содержимого с реестром (только отчёт)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Reconcile.RunOnce(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Тенант (по умолчанию все)")
	return cmd
}

func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Выполнить один проход GC (temp/ и завершённые WAL-маркеры)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.GC.RunOnce(ctx))
			})
		},
	}
}

func orphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "Показать WAL-маркеры осиротевших blob",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				orphaned, err := a.WAL.ListOrphaned()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), orphaned)
			})
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <tenantId> <blobId>",
		Short: "Пересчитать хеш одного blob",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Content.Verify(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				switch {
				case res.Missing:
					return fmt.Errorf("содержимое blob %s отсутствует", args[1])
				case !res.HashOK():
					return fmt.Errorf("хеш blob %s не совпадает", args[1])
				case !res.SizeOK():
					return fmt.Errorf("размер blob %s не совпадает", args[1])
				}
				return nil
			})
		},
	}
}
