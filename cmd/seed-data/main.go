package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/brianvoe/gofakeit/v6"
	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
)

// Seeds a demo database with fake customers through the wire protocol, so
// it doubles as an off-the-shelf client smoke test against a running
// emulator.
func main() {
	var (
		addr  = pflag.String("addr", "127.0.0.1:3306", "emulator address")
		count = pflag.Int("count", 25, "number of customers to insert")
	)
	pflag.Parse()

	db, err := sql.Open("mysql", fmt.Sprintf("root:@tcp(%s)/demo", *addr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error connecting: %s\n", err)
		os.Exit(1)
	}
	defer db.Close()

	statements := []string{
		`CREATE TABLE customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT,
			email TEXT,
			city TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			fmt.Fprintf(os.Stderr, "error creating schema: %s\n", err)
			os.Exit(1)
		}
	}

	insert, err := db.Prepare("INSERT INTO customers(name, email, city) VALUES(?, ?, ?)")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error preparing insert: %s\n", err)
		os.Exit(1)
	}
	defer insert.Close()

	for i := 0; i < *count; i++ {
		if _, err := insert.Exec(gofakeit.Name(), gofakeit.Email(), gofakeit.City()); err != nil {
			fmt.Fprintf(os.Stderr, "error inserting row: %s\n", err)
			os.Exit(1)
		}
	}

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM customers").Scan(&total); err != nil {
		fmt.Fprintf(os.Stderr, "error counting rows: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d customers\n", total)
}
