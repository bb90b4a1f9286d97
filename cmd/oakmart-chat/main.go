// ABOUTME: Terminal client for the oakmart conversational messaging core.
// ABOUTME: Drives assistant and staff conversations over REST plus WebSocket.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/oakmart/chatcore/internal/app"
	"github.com/oakmart/chatcore/internal/chat"
	"github.com/oakmart/chatcore/internal/config"
	"github.com/oakmart/chatcore/internal/controller"
)

// Version is set at build time.
var version = "dev"

// getConfigPath returns the path to the client config file.
// Priority: OAKMART_CONFIG env var > XDG_CONFIG_HOME/oakmart/chat.yaml > ~/.config/oakmart/chat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("OAKMART_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "oakmart", "chat.yaml")
}

func main() {
	configPath := flag.String("config", getConfigPath(), "Path to config file")
	apiBase := flag.String("api", "", "REST base URL (overrides config)")
	socketURL := flag.String("socket", "", "Realtime WebSocket URL (overrides config)")
	startKind := flag.String("kind", "assistant", "Conversation to open first (assistant or staff)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("oakmart-chat %s\n", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *apiBase, *socketURL, chat.Kind(*startKind)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath, apiBase, socketURL string, startKind chat.Kind) error {
	cfg, err := loadConfig(configPath, apiBase, socketURL)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	ui := newUI()
	core, err := app.New(cfg, logger, app.Callbacks{
		OnTranscript: ui.transcriptChanged,
		OnTyping:     ui.typingChanged,
		OnBanner:     ui.bannerChanged,
	})
	if err != nil {
		if errors.Is(err, chat.ErrAuthRequired) {
			return fmt.Errorf("no valid token; set %s or store one in the token file", "OAKMART_TOKEN")
		}
		return err
	}
	defer core.Shutdown(context.Background())

	core.Start(ctx)

	fmt.Printf("oakmart-chat %s connected as %s\n", version, core.UserID())
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if !startKind.Valid() {
		startKind = chat.KindAssistant
	}
	if err := switchConversation(ctx, core, ui, startKind); err != nil {
		return err
	}

	return inputLoop(ctx, core, ui)
}

// loadConfig reads the file when present and applies flag overrides. A
// missing file with both endpoints given on the command line is fine.
func loadConfig(path, apiBase, socketURL string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if apiBase != "" {
		cfg.Server.APIBase = apiBase
	}
	if socketURL != "" {
		cfg.Server.SocketURL = socketURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func inputLoop(ctx context.Context, core *app.App, ui *ui) error {
	lines := readLines(ctx)

	for {
		ui.prompt()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input = strings.TrimSpace(line)
		}
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil
		case input == "/help":
			printHelp()
		case input == "/assistant":
			if err := switchConversation(ctx, core, ui, chat.KindAssistant); err != nil {
				ui.errorf("%v", err)
			}
		case input == "/staff":
			if err := switchConversation(ctx, core, ui, chat.KindStaff); err != nil {
				ui.errorf("%v", err)
			}
		case input == "/retry":
			retryLastFailed(ctx, core, ui)
		case input == "/end":
			if err := core.EndSession(ctx, ui.activeKind()); err != nil {
				ui.errorf("%v", err)
			} else {
				fmt.Println("Conversation closed.")
			}
		case input == "/status":
			printStatus(core, ui)
		case strings.HasPrefix(input, "/"):
			ui.errorf("unknown command %s (try /help)", input)
		default:
			sendMessage(ctx, core, ui, input)
		}
	}
}

// readLines feeds stdin lines through a channel so the loop can also wake on
// context cancellation.
func readLines(ctx context.Context) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func switchConversation(ctx context.Context, core *app.App, ui *ui, kind chat.Kind) error {
	ctrl, err := core.Open(ctx, kind)
	if err != nil {
		return fmt.Errorf("opening %s conversation: %w", kind, err)
	}

	ui.setActive(kind)
	fmt.Printf("── %s conversation (session %s) ──\n", kind, ctrl.SessionID())
	ui.replay(kind, ctrl.Messages())
	return nil
}

func sendMessage(ctx context.Context, core *app.App, ui *ui, text string) {
	ctrl, ok := core.Controller(ui.activeKind())
	if !ok {
		ui.errorf("no open conversation")
		return
	}

	if _, err := ctrl.Send(ctx, text); err != nil {
		switch {
		case errors.Is(err, controller.ErrDuplicateSend):
			ui.errorf("you just sent that; give it a moment")
		default:
			ui.errorf("%v", err)
		}
	}
}

func retryLastFailed(ctx context.Context, core *app.App, ui *ui) {
	ctrl, ok := core.Controller(ui.activeKind())
	if !ok {
		ui.errorf("no open conversation")
		return
	}

	msgs := ctrl.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Delivery == chat.DeliveryFailed {
			if err := ctrl.Retry(ctx, msgs[i].LocalKey); err != nil {
				ui.errorf("%v", err)
			}
			return
		}
	}
	fmt.Println("Nothing to retry.")
}

func printStatus(core *app.App, ui *ui) {
	fmt.Printf("Connection: %s\n", core.ConnectionState())
	for _, kind := range []chat.Kind{chat.KindAssistant, chat.KindStaff} {
		if ctrl, ok := core.Controller(kind); ok {
			marker := " "
			if kind == ui.activeKind() {
				marker = "*"
			}
			fmt.Printf("%s %s: session %s, %d messages, banner %s\n",
				marker, kind, ctrl.SessionID(), len(ctrl.Messages()), ctrl.Banner())
		}
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /assistant     Switch to the shopping assistant")
	fmt.Println("  /staff         Switch to customer support staff")
	fmt.Println("  /retry         Resend the last failed message")
	fmt.Println("  /end           Close the current conversation on the server")
	fmt.Println("  /status        Show connection and session state")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
}
