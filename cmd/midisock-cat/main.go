// Command midisock-cat sends stdin lines through a midisock socket and
// prints every received message as a hex dump.
//
// Usage:
//
//	midisock-cat -config midisock.toml
//	midisock-cat -genkey
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opd-ai/midisock"
	"github.com/opd-ai/midisock/config"
	"github.com/opd-ai/midisock/crypto"
	"github.com/opd-ai/midisock/packet"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	genKey := flag.Bool("genkey", false, "print a new noise key pair and exit")
	dialTimeout := flag.Duration("dial-timeout", 5*time.Second, "noise handshake timeout")
	flag.Parse()

	if *genKey {
		if err := printKeyPair(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "midisock-cat: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *dialTimeout, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "midisock-cat: %v\n", err)
		os.Exit(1)
	}
}

func printKeyPair(w io.Writer) error {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	defer crypto.WipeKeyPair(kp)

	fmt.Fprintf(w, "private_key = %q\n", hex.EncodeToString(kp.Private[:]))
	fmt.Fprintf(w, "# public_key = %q\n", kp.PublicHex())
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(configPath string, dialTimeout time.Duration, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.ConfigureLogging(cfg.Log); err != nil {
		return err
	}

	sock, err := midisock.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer sock.Close()

	if err := selectFirst(sock); err != nil {
		return err
	}

	sock.Attach(func(msg packet.Message) {
		fmt.Fprintln(out, dump(msg))
	})

	if cfg.Noise.Enabled() && cfg.Noise.PeerPublicKey != "" && sock.ActiveDestination() >= 0 {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		err := sock.SecureDial(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("secure dial: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go readLines(in, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := sock.SendBytes([]byte(line)); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "run",
					"error":    err.Error(),
				}).Warn("Send failed")
			}
		}
	}
}

// selectFirst activates destination 0 and source 0 when they exist.
func selectFirst(sock *midisock.Socket) error {
	if len(sock.Destinations()) > 0 {
		if err := sock.SetActiveDestination(0); err != nil {
			return err
		}
	}
	if len(sock.Sources()) > 0 {
		if err := sock.SetActiveSource(0); err != nil {
			return err
		}
	}
	return nil
}

func readLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func dump(msg []byte) string {
	var b strings.Builder
	for _, v := range msg {
		fmt.Fprintf(&b, "0x%02X ", v)
	}
	return strings.TrimSpace(b.String())
}
