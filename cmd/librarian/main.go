// Command librarian administers a library database: migrations, librarian accounts
// and catalog entries that are awkward to create through the API.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/librarydb/internal/config"
	"github.com/localnerve/librarydb/internal/database"
	"github.com/localnerve/librarydb/internal/events"
	"github.com/localnerve/librarydb/internal/models"
	"github.com/localnerve/librarydb/internal/services"
	"github.com/localnerve/librarydb/internal/storage"
	applog "github.com/localnerve/librarydb/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gorm.io/gorm"
)

// app is what every subcommand works with
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *gorm.DB
	users *services.Users
}

func (a *app) close() {
	if a.db != nil {
		_ = database.Close(a.db)
	}
	_ = a.log.Sync()
}

// open loads configuration, connects and migrates
func open(envFile string) (*app, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := applog.NewLogger(cfg.ServiceName, cfg.LogLevel)

	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &app{cfg: cfg, log: log, db: db, users: services.NewUsers(db, log)}, nil
}

// acting resolves the librarian named by --as
func (a *app) acting(ctx context.Context, username string) (services.Identity, error) {
	user, err := a.users.ByUsername(ctx, username)
	if err != nil {
		return services.Identity{}, err
	}
	if user.Role != models.RoleLibrarian {
		return services.Identity{}, fmt.Errorf("%s is not a librarian", username)
	}
	return services.IdentityOf(user), nil
}

func (a *app) catalog() (*services.Catalog, error) {
	files, err := storage.NewDiskStore(a.cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	return services.NewCatalog(a.db, files, events.Nop{}, a.log), nil
}

// readPassword securely reads a password with masking
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Administer a library database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file")

	withApp := func(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			a, err := open(envFile)
			if err != nil {
				return err
			}
			defer a.close()
			return run(cmd, a)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			cmd.Printf("Schema is up to date (%s %s)\n", a.cfg.DBType, a.cfg.DBAppDatabase)
			return nil
		}),
	})

	root.AddCommand(newSeedCmd(withApp))
	root.AddCommand(newSectionCmd(withApp))
	root.AddCommand(newBookCmd(withApp))
	return root
}

type appRunner func(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error

func newSeedCmd(withApp appRunner) *cobra.Command {
	var reg services.Registration

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a librarian account",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			if reg.Password == "" {
				password, err := readPassword("Password: ")
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				reg.Password = password
			}
			if reg.FirstName == "" {
				reg.FirstName = reg.Username
			}

			user, err := a.users.CreateLibrarian(cmd.Context(), reg)
			if err != nil {
				return err
			}
			cmd.Printf("Created librarian %s (id %d)\n", user.Username, user.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reg.Username, "username", "", "account username")
	cmd.Flags().StringVar(&reg.Password, "password", "", "account password, prompted when empty")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name, defaults to the username")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newSectionCmd(withApp appRunner) *cobra.Command {
	section := &cobra.Command{
		Use:   "section",
		Short: "Manage sections",
	}

	var as string
	var in services.SectionInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a section",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			who, err := a.acting(cmd.Context(), as)
			if err != nil {
				return err
			}
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			created, err := catalog.CreateSection(cmd.Context(), who, in)
			if err != nil {
				return err
			}
			cmd.Printf("Created section %s (id %d)\n", created.Name, created.ID)
			return nil
		}),
	}
	add.Flags().StringVar(&as, "as", "", "acting librarian username")
	add.Flags().StringVar(&in.Name, "name", "", "section name")
	add.Flags().StringVar(&in.Description, "description", "", "section description")
	_ = add.MarkFlagRequired("as")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List sections",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			sections, err := catalog.ListSections(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range sections {
				cmd.Printf("%d\t%s\t%s\n", s.ID, s.Name, s.Description)
			}
			return nil
		}),
	}

	section.AddCommand(add, list)
	return section
}

func newBookCmd(withApp appRunner) *cobra.Command {
	book := &cobra.Command{
		Use:   "book",
		Short: "Manage books",
	}

	var as, file, price string
	var authors []string
	var in services.BookInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a book from a local PDF",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			who, err := a.acting(cmd.Context(), as)
			if err != nil {
				return err
			}
			if in.Price, err = models.NewPrice(price); err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}
			in.Authors = authors

			f, err := os.Open(filepath.Clean(file))
			if err != nil {
				return err
			}
			defer f.Close()

			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			created, err := catalog.CreateBook(cmd.Context(), who, in, services.Upload{Filename: filepath.Base(file), Content: f})
			if err != nil {
				return err
			}
			cmd.Printf("Created book %s (id %d) in %s\n", created.Name, created.ID, created.SectionName)
			return nil
		}),
	}
	add.Flags().StringVar(&as, "as", "", "acting librarian username")
	add.Flags().StringVar(&file, "file", "", "path to the PDF content")
	add.Flags().StringVar(&in.ISBN, "isbn", "", "ISBN")
	add.Flags().StringVar(&in.Name, "name", "", "title")
	add.Flags().StringVar(&in.Publisher, "publisher", "", "publisher")
	add.Flags().IntVar(&in.PageCount, "pages", 0, "page count")
	add.Flags().IntVar(&in.Volume, "volume", 0, "volume")
	add.Flags().StringVar(&price, "price", "0", "price")
	add.Flags().UintVar(&in.SectionID, "section", models.UnassignedSectionID, "section id, 0 for Unassigned")
	add.Flags().StringSliceVar(&authors, "author", nil, "author name, repeatable or comma separated")
	for _, name := range []string{"as", "file", "isbn", "name", "publisher", "pages", "author"} {
		_ = add.MarkFlagRequired(name)
	}

	book.AddCommand(add)
	return book
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
