package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/harrylevesque/kdcode/internal/crypto"
)

func main() {
	keyFile := flag.String("out", "seal.key", "File to write the hex seal key to; - prints it")
	force := flag.Bool("force", false, "Overwrite an existing key file")
	flag.Parse()

	key, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating random key: %v\n", err)
		os.Exit(1)
	}
	hexKey := hex.EncodeToString(key)
	if *keyFile == "-" {
		fmt.Println(hexKey)
		return
	}
	if _, err := os.Stat(*keyFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists. Refusing to overwrite.\n", *keyFile)
		os.Exit(1)
	}
	if err := os.WriteFile(*keyFile, []byte(hexKey+"\n"), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *keyFile, err)
		os.Exit(1)
	}
	fmt.Printf("Seal key written to %s; set seal.key_hex or KDCODE_SEAL_KEY_HEX to its contents\n", *keyFile)
}
