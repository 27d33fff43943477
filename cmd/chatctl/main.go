// chatctl is a terminal chat client for the gateway. It joins with a
// username, renders the room to stdout and sends every stdin line as a
// message.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/net/websocket"

	"chat-gateway/domain/event"
)

type Config struct {
	GatewayURL string `env:"GATEWAY_URL,default=ws://localhost:8080/ws"`
	Origin     string `env:"GATEWAY_ORIGIN,default=http://localhost:8080"`
	Username   string `env:"CHAT_USERNAME"`
}

func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	username := flag.String("username", config.Username, "username to join with")
	flag.Parse()
	if strings.TrimSpace(*username) == "" {
		log.Fatal("A username is required (--username or CHAT_USERNAME)")
	}

	conn, err := websocket.Dial(config.GatewayURL, "", config.Origin)
	if err != nil {
		log.Fatalf("Failed to reach gateway at %s: %v", config.GatewayURL, err)
	}
	defer conn.Close()

	join := event.Event{Type: event.TypeJoin, Username: *username}
	if err := websocket.JSON.Send(conn, join); err != nil {
		log.Fatalf("Join failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		render(conn)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		content := strings.TrimSpace(scanner.Text())
		if content == "" {
			continue
		}
		if content == "/quit" {
			_ = websocket.JSON.Send(conn, event.Event{Type: event.TypeLeave})
			break
		}
		msg := event.Event{Type: event.TypeMessage, Content: content}
		if err := websocket.JSON.Send(conn, msg); err != nil {
			log.Fatalf("Send failed: %v", err)
		}
	}
	<-done
}

// render prints incoming events until the connection closes.
func render(conn *websocket.Conn) {
	for {
		var e event.Event
		if err := websocket.JSON.Receive(conn, &e); err != nil {
			color.Gray.Println("Disconnected from gateway")
			return
		}

		switch e.Type {
		case event.TypeMessage:
			fmt.Printf("%s %s\n", color.Cyan.Sprintf("<%s>", e.Username), e.Content)
		case event.TypeUserJoined:
			color.Green.Println(e.Content)
		case event.TypeUserLeft:
			color.Yellow.Println(e.Content)
		case event.TypeUserList:
			printRoster(e.Users)
		case event.TypeError:
			color.Red.Printf("Error: %s\n", e.Content)
			return
		}
	}
}

func printRoster(users []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Online users"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	for _, u := range users {
		table.Append([]string{u})
	}
	table.Render()
}
