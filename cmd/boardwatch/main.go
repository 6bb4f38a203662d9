// Command boardwatch lists boards, or follows one board and prints every
// change other clients make to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boardsync/internal/client"
	"boardsync/internal/model"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "websocket address of the server")
	origin := flag.String("origin", "http://localhost:3000", "Origin header to send")
	board := flag.String("board", "", "board to follow; lists boards when empty")
	flag.Parse()

	if err := run(*addr, *origin, *board); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(addr, origin, boardID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	header := http.Header{}
	header.Set("Origin", origin)
	agent := client.New(client.WithHeader(header))

	lost := make(chan error, 1)
	agent.OnError(func(err error) {
		select {
		case lost <- err:
		default:
		}
	})

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := agent.Connect(dialCtx, addr); err != nil {
		return err
	}
	defer agent.Close()

	if boardID == "" {
		boards, err := agent.GetBoardList(dialCtx)
		if err != nil {
			return err
		}
		for _, b := range boards {
			fmt.Printf("%s\t%s\n", b.ID, b.Name)
		}
		return nil
	}

	agent.OnRemoteUpdate(func(u model.BoardUpdate) {
		if box, ok := agent.Box(u.UUID); ok {
			printBox("update", box)
		}
	})
	agent.OnRemoteDelete(func(_, id string) {
		fmt.Printf("delete\t%s\n", id)
	})

	b, err := agent.GetBoardData(dialCtx, boardID)
	if err != nil {
		return err
	}
	fmt.Printf("board %s (%s), %d boxes\n", b.ID, b.Name, len(b.Boxes))
	for _, box := range agent.Boxes() {
		printBox("box", box)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-lost:
		return err
	}
}

func printBox(prefix string, b model.Box) {
	s := b.State
	fmt.Printf("%s\t%s\t%s\tx=%d y=%d w=%d h=%d z=%d color=%s text=%q\n",
		prefix, b.UUID, b.Type, s.X, s.Y, s.W, s.H, s.Z, s.Color, s.Text)
}
