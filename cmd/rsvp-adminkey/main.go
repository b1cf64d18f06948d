// Package main hashes an operator admin key for RSVP_ADMIN_KEY_HASH.
//
// Usage:
//
//	echo -n "$KEY" | rsvp-adminkey
//	rsvp-adminkey -generate
//
// With -generate a random key is created, printed to stderr once, and its
// hash printed to stdout.
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"rsvp/cmd/security/adminkey"
)

func main() {
	var (
		generate = flag.Bool("generate", false, "Generate a random key instead of reading stdin")
		verify   = flag.String("verify", "", "Verify stdin key against this encoded hash instead of hashing")
	)
	flag.Parse()

	p, err := adminkey.ParamsFromEnv()
	if err != nil {
		fatalf("params: %v", err)
	}

	var key string
	if *generate {
		key, err = randomKey()
		if err != nil {
			fatalf("generate: %v", err)
		}
		fmt.Fprintf(os.Stderr, "admin key (store it now, it is not recoverable): %s\n", key)
	} else {
		key, err = readKey(os.Stdin)
		if err != nil {
			fatalf("read key: %v", err)
		}
	}

	if *verify != "" {
		ok, err := adminkey.Verify(*verify, key)
		if err != nil {
			fatalf("verify: %v", err)
		}
		if !ok {
			fatalf("key does not match")
		}
		fmt.Println("ok")
		return
	}

	enc, err := adminkey.Hash(key, p)
	if err != nil {
		fatalf("hash: %v", err)
	}
	fmt.Println(enc)
}

func readKey(r io.Reader) (string, error) {
	br := bufio.NewReader(io.LimitReader(r, 4096))
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	key := strings.TrimRight(line, "\r\n")
	if key == "" {
		return "", fmt.Errorf("empty key on stdin")
	}
	return key, nil
}

func randomKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "rsvp-adminkey: "+format+"\n", args...)
	os.Exit(1)
}
