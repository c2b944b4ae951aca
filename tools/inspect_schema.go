package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/localnerve/librarydb/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	columns := flag.Bool("columns", false, "also list column types reported by the migrator")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatal(err)
	}

	// Auto-migrate to see what GORM creates
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal(err)
	}

	tables, err := db.Migrator().GetTables()
	if err != nil {
		log.Fatal(err)
	}

	for _, table := range tables {
		fmt.Printf("\n=== Table: %s ===\n", table)
		var schema string
		db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&schema)
		fmt.Println(schema)

		var indexes []string
		db.Raw("SELECT sql FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL", table).Scan(&indexes)
		for _, idx := range indexes {
			fmt.Println(idx)
		}

		if !*columns {
			continue
		}
		types, err := db.Migrator().ColumnTypes(table)
		if err != nil {
			log.Fatal(err)
		}
		for _, ct := range types {
			nullable, _ := ct.Nullable()
			pk, _ := ct.PrimaryKey()
			fmt.Printf("  %-16s %-12s null=%-5t pk=%t\n", ct.Name(), ct.DatabaseTypeName(), nullable, pk)
		}
	}
}
