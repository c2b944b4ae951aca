package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/librarydb/internal/devstack"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	var outFilename string
	flag.StringVar(&outFilename, "o", "", "write the server environment to this file")
	flag.Parse()

	usage := `
Run the librarydb backing services in containers, configured by the environment.

Usage:

devstack [-h] [-f ENV_FILE_PATH] [-o OUT_FILE_PATH]

ENV_FILE_PATH: path to the .env file naming DB_IMAGE, RABBITMQ_IMAGE and AUTHZ_IMAGE
OUT_FILE_PATH: .env file for the server, usable as server -f OUT_FILE_PATH

example
  devstack -f ./devstack.env -o ./.env.local
`
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	} else {
		log.Printf("No environment file specified, using current environment variables\n")
	}

	ctx := context.Background()
	stack, err := devstack.Start(ctx, devstack.OptionsFromEnv(), log.Printf)
	if err != nil {
		log.Fatalf("Failed to start containers: %v\n", err)
	}

	env := stack.Env()
	if outFilename != "" {
		if err := godotenv.Write(env, outFilename); err != nil {
			log.Printf("Failed to write %s: %v\n", outFilename, err)
		} else {
			log.Printf("Server environment written to %s\n", outFilename)
		}
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, env[k])
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigs
	log.Printf("\nReceived signal: %v, terminating containers...\n", sig)
	if err := stack.Terminate(ctx); err != nil {
		log.Printf("Failed to terminate cleanly: %v\n", err)
	}
}
