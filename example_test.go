package pagedb_test

import (
	"fmt"
	"log"
	"os"

	pagedb "github.com/hupe1980/pagedb"
	"github.com/hupe1980/pagedb/pagestore"
)

func Example() {
	dir, err := os.MkdirTemp("", "pagedb-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := pagedb.Open(dir, pagedb.WithCompression(1))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	users, err := db.OpenMap("users", pagestore.StringType{}, pagestore.StringType{})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := users.Put("alice", "admin"); err != nil {
		log.Fatal(err)
	}
	if _, err := users.Put("bob", "viewer"); err != nil {
		log.Fatal(err)
	}
	if err := db.Commit(); err != nil {
		log.Fatal(err)
	}

	role, ok, err := users.Get("alice")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(ok, role)
	// Output: true admin
}
