package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/christoph-heiss/resply"
)

func main() {
	app := &cli.App{
		Name:    "resply-cli",
		Usage:   "interactive command shell for RESP servers",
		Version: resply.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"H"},
				Value:   "localhost",
				Usage:   "host to connect to",
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   resply.DefaultPort,
				Usage:   "port to connect to",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	client := resply.NewClient(ctx.String("host") + ":" + ctx.String("port"))
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("%s:%s> ", client.Host(), client.Port())

		if !scanner.Scan() {
			break
		}

		words := strings.Fields(scanner.Text())
		if len(words) == 0 {
			continue
		}

		args := make([]interface{}, len(words))
		for i, word := range words {
			args[i] = word
		}

		fmt.Println(client.Command(args...))
	}

	fmt.Println()
	return scanner.Err()
}
