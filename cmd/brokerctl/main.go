// Command brokerctl attaches to a document broker's session channel,
// forwards command lines from stdin and prints the notifications the
// broker sends back.
//
// Example session:
//
//	brokerctl -a localhost:50052 -k mydoc
//	open policy=force-overwrite
//	edit content=hello
//	closedocument
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/dmitrijs2005/docbroker/internal/broker/channel"
)

func main() {
	endpoint := flag.String("a", "localhost:50052", "broker endpoint address")
	docKey := flag.String("k", "", "document key")
	flag.Parse()

	if *docKey == "" {
		log.Fatal("document key is required (-k)")
	}

	client, err := channel.Dial(*endpoint)
	if err != nil {
		log.Fatalf("dial %s: %v", *endpoint, err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Attach(ctx, *docKey); err != nil {
		log.Fatalf("attach %q: %v", *docKey, err)
	}

	go func() {
		for {
			msg, err := client.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Printf("recv: %v", err)
				}
				return
			}
			fmt.Println("<", msg)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := client.Send(line); err != nil {
			log.Fatalf("send: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("stdin: %v", err)
	}
	_ = client.CloseSend()
}
