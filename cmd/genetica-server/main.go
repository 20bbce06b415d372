package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/genetica/genetica/internal/config"
	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/account"
	"github.com/genetica/genetica/internal/platform/db"
	"github.com/genetica/genetica/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "genetica-server",
		Short: "Genetic counseling case API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(usersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

// migrationFiles returns the migrations directory when one is configured
// and the embedded schema otherwise.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.MigrationsDir
		}

		ctx := cmd.Context()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrationFiles(dir)))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				n, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Applied %d migration(s)\n", n)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded schema)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded schema)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// withServices builds the services of the configured backend for a one-off
// command. The memory backend is rejected since its data would be lost on
// exit.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StorageBackend != config.BackendPostgres {
		return fmt.Errorf("user commands require STORAGE_BACKEND=%s", config.BackendPostgres)
	}
	ctx := cmd.Context()
	svcs, err := newServices(ctx, cfg, newLogger(cfg), nil)
	if err != nil {
		return err
	}
	defer svcs.Close()
	return fn(ctx, svcs)
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts and profiles",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := account.NewUser{}
			in.Email, _ = cmd.Flags().GetString("email")
			in.Password, _ = cmd.Flags().GetString("password")
			in.DisplayName, _ = cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			in.Role = access.Role(role)
			assoc, err := optionalUUID(cmd, "associated-geneticist")
			if err != nil {
				return err
			}
			in.AssociatedGeneticistID = assoc

			return withServices(cmd, func(ctx context.Context, s *services) error {
				u, p, err := s.accounts.CreateUser(ctx, in)
				if err != nil {
					return err
				}
				fmt.Printf("Created %s (user %s, profile %s, role %s)\n", u.Email, u.ID, p.ID, p.Role)
				return nil
			})
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Initial password")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("role", string(access.RoleGeneticist), "administrator, geneticist or reader")
	createCmd.Flags().String("associated-geneticist", "", "Geneticist profile id (readers only)")
	cmd.AddCommand(createCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the users listed in a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			return withServices(cmd, func(ctx context.Context, s *services) error {
				n, err := s.accounts.Seed(ctx, f)
				if err != nil {
					return err
				}
				fmt.Printf("Created %d user(s)\n", n)
				return nil
			})
		},
	}
	seedCmd.Flags().String("file", "", "Path to the seed file")
	cmd.AddCommand(seedCmd)

	roleCmd := &cobra.Command{
		Use:   "role",
		Short: "Change the role of an identity's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user-id")
			if userID == "" {
				return fmt.Errorf("--user-id is required")
			}
			role, _ := cmd.Flags().GetString("role")
			assoc, err := optionalUUID(cmd, "associated-geneticist")
			if err != nil {
				return err
			}

			return withServices(cmd, func(ctx context.Context, s *services) error {
				p, err := s.access.EnsureProfile(ctx, userID, "")
				if err != nil {
					return err
				}
				if p, err = s.access.ChangeRole(ctx, p.ID, access.Role(role), assoc); err != nil {
					return err
				}
				fmt.Printf("Profile %s is now %s\n", p.ID, p.Role)
				return nil
			})
		},
	}
	roleCmd.Flags().String("user-id", "", "Identity subject (token sub claim)")
	roleCmd.Flags().String("role", "", "administrator, geneticist or reader")
	roleCmd.Flags().String("associated-geneticist", "", "Geneticist profile id (readers only)")
	cmd.AddCommand(roleCmd)

	return cmd
}

func optionalUUID(cmd *cobra.Command, flag string) (*uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(flag)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return &id, nil
}
