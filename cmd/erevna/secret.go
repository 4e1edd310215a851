package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mtzanidakis/erevna/internal/config"
	"github.com/mtzanidakis/erevna/internal/store"
	"github.com/mtzanidakis/erevna/internal/vault"
)

func runSecret(args []string) error {
	if len(args) < 1 {
		printSecretUsage()
		return fmt.Errorf("missing secret subcommand")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Vault.Passphrase == "" {
		return fmt.Errorf("vault passphrase not configured (set EREVNA_VAULT_PASSPHRASE)")
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	secrets := vault.NewSecretStore(cfg.Vault.Passphrase, db)

	switch args[0] {
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: erevna secret set <name> [value]")
		}
		name := args[1]
		var value string
		if len(args) >= 3 {
			value = args[2]
		} else {
			// Read the value from stdin so it stays out of shell history.
			fmt.Fprintf(os.Stderr, "Value for %s: ", name)
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read value: %w", err)
			}
			value = strings.TrimRight(line, "\r\n")
		}
		if err := secrets.Set(name, value); err != nil {
			return err
		}
		fmt.Printf("Secret %s stored.\n", name)
		return nil

	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: erevna secret get <name>")
		}
		value, err := secrets.Get(args[1])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil

	case "list":
		names, err := secrets.List()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: erevna secret delete <name>")
		}
		if err := secrets.Delete(args[1]); err != nil {
			return err
		}
		fmt.Printf("Secret %s deleted.\n", args[1])
		return nil

	default:
		printSecretUsage()
		return fmt.Errorf("unknown secret subcommand %q", args[0])
	}
}

func printSecretUsage() {
	fmt.Fprintf(os.Stderr, `Usage: erevna secret <subcommand>

Subcommands:
  set <name> [value]   Store a secret (reads value from stdin when omitted)
  get <name>           Print a decrypted secret
  list                 List secret names
  delete <name>        Remove a secret
`)
}
