package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dcaliste/mkcal/calendar"
	"github.com/dcaliste/mkcal/cnf"
	"github.com/dcaliste/mkcal/db"
)

func main() {
	app := &cli.App{
		Name:  "mkcaltool",
		Usage: "inspect a calendar storage database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "path of the database file",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path of a key=value configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "notebooks",
				Usage:  "list the notebooks of the storage",
				Action: runNotebooks,
			},
			{
				Name:   "counts",
				Usage:  "print event, todo and journal counts",
				Action: runCounts,
			},
			{
				Name:  "list",
				Usage: "list incidences",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "notebook", Usage: "restrict to one notebook uid"},
					&cli.BoolFlag{Name: "deleted", Usage: "list tombstones instead of live incidences"},
				},
				Action: runList,
			},
			{
				Name:   "contacts",
				Usage:  "list the attendees seen in the storage",
				Action: runContacts,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStorage(c *cli.Context) (*db.Storage, error) {
	cfg := map[string]string{}
	if path := c.String("config"); path != "" {
		loaded, err := cnf.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg = cnf.LoadEnv(cfg)
	ac, err := cnf.ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	if path := c.String("database"); path != "" {
		ac.DBPath = path
	}

	storage, err := db.NewStorageFromConfig(ac)
	if err != nil {
		return nil, err
	}
	if err := storage.Open(); err != nil {
		return nil, fmt.Errorf("cannot open storage %s: %w", ac.DBPath, err)
	}
	return storage, nil
}

func runNotebooks(c *cli.Context) error {
	storage, err := openStorage(c)
	if err != nil {
		return err
	}
	defer storage.Close()

	for _, nb := range storage.Notebooks() {
		marker := " "
		if nb.IsDefault() {
			marker = "*"
		}
		fmt.Printf("%s %s  %-24s %s\n", marker, nb.UID, nb.Name, nb.Description)
	}
	return nil
}

func runCounts(c *cli.Context) error {
	storage, err := openStorage(c)
	if err != nil {
		return err
	}
	defer storage.Close()

	events, err := storage.EventCount()
	if err != nil {
		return err
	}
	todos, err := storage.TodoCount()
	if err != nil {
		return err
	}
	journals, err := storage.JournalCount()
	if err != nil {
		return err
	}
	fmt.Printf("events: %d\ntodos: %d\njournals: %d\n", events, todos, journals)
	return nil
}

func runList(c *cli.Context) error {
	storage, err := openStorage(c)
	if err != nil {
		return err
	}
	defer storage.Close()

	if c.Bool("deleted") {
		list, err := storage.DeletedIncidences(calendar.DateTime{}, c.String("notebook"))
		if err != nil {
			return err
		}
		for _, inc := range list {
			printIncidence(inc)
		}
		return nil
	}

	filter := db.FilterAll()
	if nb := c.String("notebook"); nb != "" {
		filter = db.FilterNotebook(nb)
	}
	collection, err := storage.LoadIncidences(filter)
	if err != nil {
		return err
	}
	for nbUID, incidences := range collection {
		fmt.Printf("notebook %s:\n", nbUID)
		for _, inc := range incidences {
			printIncidence(inc)
		}
	}
	return nil
}

func runContacts(c *cli.Context) error {
	storage, err := openStorage(c)
	if err != nil {
		return err
	}
	defer storage.Close()

	contacts, err := storage.LoadContacts()
	if err != nil {
		return err
	}
	for _, p := range contacts {
		fmt.Printf("%s <%s>\n", p.Name, p.Email)
	}
	return nil
}

func printIncidence(inc *calendar.Incidence) {
	start := ""
	if inc.DtStart.IsValid() {
		start = inc.DtStart.Time.Format(time.RFC3339)
	}
	fmt.Printf("  [%s] %s %s %s\n", inc.Type, inc.UID, start, inc.Summary)
}
