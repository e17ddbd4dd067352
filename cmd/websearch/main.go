package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "ask":
		err = runAsk(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "settings":
		err = runSettings(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'websearch --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`websearch - answer questions from live web results, with citations

USAGE:
    websearch COMMAND [FLAGS] [ARGS]

COMMANDS:
    ask QUERY       Search the web and print the cited answer
    serve           Serve the web_search tool over MCP stdio
    settings        Print the plugin settings schema and current values
                    Subcommands: validate JSON

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --plain            (ask) Print the answer as plain text instead of HTML
    --max N            (ask) Override search_max_results for this query
    --lang CODE        (ask) Override the answer language (en, it)

CONFIGURATION:
    Config file: ./config.yaml (optional, defaults apply when missing)
    Environment: WEBSEARCH_* variables override config, OPENAI_API_KEY is
                 used when no LLM key is configured

EXAMPLES:
    websearch ask "what is the latest Go release"
    websearch ask --plain --max 5 "rust borrow checker"
    websearch serve --config /etc/websearch.yaml
    websearch settings validate '{"search_max_results": 5}'`)
}

// cliFlags holds the flags shared by all commands plus positional args.
type cliFlags struct {
	Config string
	Plain  bool
	Max    int
	MaxSet bool
	Lang   string
	Args   []string
}

// parseFlags extracts --config, --plain, --max and --lang from args; the rest
// are positional.
func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" && i+1 < len(args):
			f.Config = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			f.Config = strings.TrimPrefix(arg, "--config=")
		case arg == "--plain":
			f.Plain = true
		case arg == "--max" && i+1 < len(args):
			if err := f.setMax(args[i+1]); err != nil {
				return f, err
			}
			i++
		case strings.HasPrefix(arg, "--max="):
			if err := f.setMax(strings.TrimPrefix(arg, "--max=")); err != nil {
				return f, err
			}
		case arg == "--lang" && i+1 < len(args):
			f.Lang = args[i+1]
			i++
		case strings.HasPrefix(arg, "--lang="):
			f.Lang = strings.TrimPrefix(arg, "--lang=")
		default:
			f.Args = append(f.Args, arg)
		}
	}
	return f, nil
}

func (f *cliFlags) setMax(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("--max: %q is not a number", v)
	}
	f.Max, f.MaxSet = n, true
	return nil
}

// configPath resolves the config file: --config, then $WEBSEARCH_CONFIG,
// then ./config.yaml.
func configPath(f cliFlags) string {
	if f.Config != "" {
		return f.Config
	}
	if p := os.Getenv("WEBSEARCH_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
